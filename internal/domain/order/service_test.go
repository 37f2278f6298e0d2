package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	orders  []*Order
	listErr error
}

func (m *mockOrderRepo) CreateBatch(_ context.Context, orders []*Order) error {
	m.orders = append(m.orders, orders...)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) ListByCode(_ context.Context, code string) ([]*Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*Order
	for _, o := range m.orders {
		if o.Code == code {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ListByCustomer(_ context.Context, customerID string) ([]*Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) Update(_ context.Context, _ *Order) error { return nil }

// --- Helpers ---

func newRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: []*Order{
		{ID: uuid.NewString(), Code: "K1", SubCode: "VN-K1", CustomerID: "c1"},
		{ID: uuid.NewString(), Code: "K1", SubCode: "SGVN-K1-1", CustomerID: "c1"},
		{ID: uuid.NewString(), Code: "K2", SubCode: "VN-K2", CustomerID: "c2"},
	}}
}

// --- Tests ---

func TestService_List(t *testing.T) {
	svc := NewService(newRepo())

	orders, err := svc.List(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestService_Get(t *testing.T) {
	repo := newRepo()
	svc := NewService(repo)

	tests := []struct {
		name     string
		customer string
		key      string
		wantLen  int
		wantErr  error
	}{
		{name: "by id", customer: "c1", key: repo.orders[0].ID, wantLen: 1},
		{name: "by code returns every sub-order", customer: "c1", key: "K1", wantLen: 2},
		{name: "id of another customer", customer: "c1", key: repo.orders[2].ID, wantErr: ErrNotFound},
		{name: "code of another customer", customer: "c1", key: "K2", wantErr: ErrNotFound},
		{name: "unknown id", customer: "c1", key: uuid.NewString(), wantErr: ErrNotFound},
		{name: "unknown code", customer: "c1", key: "NOPE", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, err := svc.Get(context.Background(), tt.customer, tt.key)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, orders, tt.wantLen)
		})
	}
}

func TestService_GetRepositoryError(t *testing.T) {
	svc := NewService(&mockOrderRepo{listErr: errors.New("timeout")})

	_, err := svc.Get(context.Background(), "c1", "K1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestService_OwnedByCode(t *testing.T) {
	repo := newRepo()
	repo.orders = append(repo.orders, &Order{ID: uuid.NewString(), Code: "K1", SubCode: "JPVN-K1-2", CustomerID: "c2"})
	svc := NewService(repo)

	tests := []struct {
		name     string
		customer string
		code     string
		wantLen  int
		wantErr  error
	}{
		{name: "skips sub-orders of other customers", customer: "c1", code: "K1", wantLen: 2},
		{name: "foreign sub-order only", customer: "c2", code: "K1", wantLen: 1},
		{name: "nothing owned", customer: "c3", code: "K1", wantErr: ErrNotFound},
		{name: "unknown code", customer: "c1", code: "NOPE", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, err := svc.OwnedByCode(context.Background(), tt.customer, tt.code)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, orders, tt.wantLen)
			for _, o := range orders {
				assert.Equal(t, tt.customer, o.CustomerID)
			}
		})
	}
}
