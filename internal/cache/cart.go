// Package cache keeps session carts in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// DefaultCartTTL is how long an untouched cart survives.
const DefaultCartTTL = 7 * 24 * time.Hour

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store on Redis. Each account's cart is one JSON
// value whose expiry is refreshed on every write.
type CartStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCartStore returns a CartStore. A non-positive ttl selects
// DefaultCartTTL.
func NewCartStore(client redis.Cmdable, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartStore{client: client, ttl: ttl}
}

// Get returns the account's cart or cart.ErrNotFound.
func (s *CartStore) Get(ctx context.Context, accountID string) (cart.Snapshot, error) {
	data, err := s.client.Get(ctx, cartKey(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.Snapshot{}, cart.ErrNotFound
	}
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("redis get cart: %w", err)
	}

	var lines []cart.Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return cart.Snapshot{}, fmt.Errorf("unmarshal cart: %w", err)
	}
	return cart.New(lines)
}

// Put replaces the account's cart.
func (s *CartStore) Put(ctx context.Context, accountID string, lines []cart.Line) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.client.Set(ctx, cartKey(accountID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

// Clear removes the account's cart.
func (s *CartStore) Clear(ctx context.Context, accountID string) error {
	if err := s.client.Del(ctx, cartKey(accountID)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *CartStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func cartKey(accountID string) string {
	return "cart:" + accountID
}
