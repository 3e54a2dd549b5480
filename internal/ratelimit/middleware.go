// Package ratelimit throttles requests per cashier with ulule/limiter.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/toko-kasir/internal/common"
	"github.com/noah-isme/toko-kasir/internal/obs"
)

// Decision is the limiter verdict for one request.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// Limiter counts a hit for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Ulule adapts a ulule limiter instance.
type Ulule struct {
	L *limiter.Limiter
}

// Allow increments the counter for key.
func (u Ulule) Allow(ctx context.Context, key string) (Decision, error) {
	c, err := u.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !c.Reached,
		Limit:     c.Limit,
		Remaining: c.Remaining,
		Reset:     time.Unix(c.Reset, 0),
	}, nil
}

// NewRedis builds a limiter shared across instances. rate uses the ulule
// format, e.g. "30-M".
func NewRedis(client *redis.Client, rate, prefix string) (Ulule, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return Ulule{}, err
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return Ulule{}, err
	}
	return Ulule{L: limiter.New(store, r)}, nil
}

// NewMemory builds a process-local limiter.
func NewMemory(rate string) (Ulule, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return Ulule{}, err
	}
	return Ulule{L: limiter.New(memory.NewStore(), r)}, nil
}

// CashierKey keys requests by the cashier header, falling back to the client IP.
func CashierKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(obs.CashierHeader)); id != "" {
		return "cashier:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter Limiter
	Key     func(*http.Request) string
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface. A limiter
// failure lets the request through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		keyFn := h.Key
		if keyFn == nil {
			keyFn = CashierKey
		}
		d, err := h.Limiter.Allow(r.Context(), keyFn(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

		if !d.Allowed {
			retryAfter := max(int(time.Until(d.Reset).Seconds()), 0)
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many checkout attempts, slow down", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
