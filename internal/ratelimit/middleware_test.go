package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-kasir/internal/obs"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	l, err := NewMemory("1-M")
	require.NoError(t, err)
	counted := Handler{Limiter: l}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	req.Header.Set(obs.CashierHeader, "kasir-1")
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr2.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))
	require.Contains(t, rr2.Body.String(), "RATE_LIMITED")

	other := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	other.Header.Set(obs.CashierHeader, "kasir-2")
	rr3 := httptest.NewRecorder()
	counted.ServeHTTP(rr3, other)
	require.Equal(t, http.StatusOK, rr3.Code, "limits are per cashier")
}

func TestRedisLimiterSharesCounts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a, err := NewRedis(client, "2-M", "kasir:ratelimit")
	require.NoError(t, err)
	b, err := NewRedis(client, "2-M", "kasir:ratelimit")
	require.NoError(t, err)

	ctx := context.Background()
	d, err := a.Allow(ctx, "cashier:1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = b.Allow(ctx, "cashier:1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = a.Allow(ctx, "cashier:1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.True(t, d.Reset.After(time.Now()))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	called := false
	handler := Handler{Limiter: failingLimiter{}, OnError: func(error) { called = true }}

	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, called)
}

func TestCashierKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	require.Equal(t, "ip:10.0.0.7", CashierKey(req))
	req.Header.Set(obs.CashierHeader, " kasir-9 ")
	require.Equal(t, "cashier:kasir-9", CashierKey(req))
}

func TestInvalidRate(t *testing.T) {
	_, err := NewMemory("often")
	require.Error(t, err)
}
