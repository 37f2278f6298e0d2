package account

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	byHash map[string]*Account
	err    error
}

func (m *mockRepo) FindBySessionHash(_ context.Context, hash string) (*Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	acc, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return acc, nil
}

func TestAuthenticate(t *testing.T) {
	pepper := []byte("pepper")
	hash := HashToken("session-1", pepper)
	repo := &mockRepo{byHash: map[string]*Account{
		hash: {ID: "c1", Email: "lan@example.com", SessionHash: hash},
	}}
	auth := NewAuthenticator(repo, pepper)

	acc, err := auth.Authenticate(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Equal(t, "c1", acc.ID)

	_, err = auth.Authenticate(context.Background(), "session-2")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = auth.Authenticate(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_StaleRow(t *testing.T) {
	pepper := []byte("pepper")
	repo := &mockRepo{byHash: map[string]*Account{
		HashToken("session-1", pepper): {ID: "c1", SessionHash: HashToken("other", pepper)},
	}}

	_, err := NewAuthenticator(repo, pepper).Authenticate(context.Background(), "session-1")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_RepositoryError(t *testing.T) {
	auth := NewAuthenticator(&mockRepo{err: errors.New("pool closed")}, nil)

	_, err := auth.Authenticate(context.Background(), "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestHashToken(t *testing.T) {
	a := HashToken("token", []byte("p1"))
	b := HashToken("token", []byte("p2"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, HashToken("token", []byte("p1")))
}
