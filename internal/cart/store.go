package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-kasir/internal/cache"
)

// Store persists cart sessions between requests.
type Store interface {
	Load(ctx context.Context, id string) (Order, error)
	Save(ctx context.Context, o Order) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps each cart as one JSON document with a sliding TTL.
type RedisStore struct {
	docs *cache.JSON
}

// NewRedisStore constructs a Redis-backed cart store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisStore{docs: cache.NewJSON(client, ttl)}
}

func sessionKey(id string) string { return "cart:" + id }

// Load returns the cart or ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, id string) (Order, error) {
	var o Order
	ok, err := s.docs.Get(ctx, sessionKey(id), &o)
	if err != nil {
		return Order{}, fmt.Errorf("load cart %s: %w", id, err)
	}
	if !ok {
		return Order{}, ErrNotFound
	}
	if o.Lines == nil {
		o.Lines = []Line{}
	}
	return o, nil
}

// Save writes the cart and refreshes its expiry.
func (s *RedisStore) Save(ctx context.Context, o Order) error {
	if err := s.docs.Set(ctx, sessionKey(o.ID), o); err != nil {
		return fmt.Errorf("save cart %s: %w", o.ID, err)
	}
	return nil
}

// Delete drops the cart session.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.docs.Delete(ctx, sessionKey(id))
}
