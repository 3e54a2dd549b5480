package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger caches per-day sold quantities as one Redis hash per business day,
// keyed by product id.
type Ledger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLedger constructs a ledger cache.
func NewLedger(client *redis.Client, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Ledger{client: client, ttl: ttl}
}

// LedgerKey returns the hash key for the given business day.
func LedgerKey(day time.Time) string {
	return "ledger:" + day.Format(time.DateOnly)
}

// Get returns the cached quantities for ids and the ids that missed.
func (l *Ledger) Get(ctx context.Context, day time.Time, ids []string) (map[string]int, []string, error) {
	if l == nil || l.client == nil || len(ids) == 0 {
		return map[string]int{}, ids, nil
	}
	values, err := l.client.HMGet(ctx, LedgerKey(day), ids...).Result()
	if err != nil {
		return nil, ids, err
	}
	hits := make(map[string]int, len(ids))
	var misses []string
	for i, raw := range values {
		s, ok := raw.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			misses = append(misses, ids[i])
			continue
		}
		hits[ids[i]] = n
	}
	return hits, misses, nil
}

// Put stores quantities for the day and refreshes the hash expiry.
func (l *Ledger) Put(ctx context.Context, day time.Time, sold map[string]int) error {
	if l == nil || l.client == nil || len(sold) == 0 {
		return nil
	}
	key := LedgerKey(day)
	fields := make([]any, 0, len(sold)*2)
	for id, qty := range sold {
		fields = append(fields, id, qty)
	}
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, key, fields...)
	pipe.Expire(ctx, key, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache ledger put: %w", err)
	}
	return nil
}

// Invalidate drops cached quantities for ids so the next read goes to the
// database.
func (l *Ledger) Invalidate(ctx context.Context, day time.Time, ids ...string) error {
	if l == nil || l.client == nil || len(ids) == 0 {
		return nil
	}
	return l.client.HDel(ctx, LedgerKey(day), ids...).Err()
}
