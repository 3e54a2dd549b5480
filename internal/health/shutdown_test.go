package health_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-kasir/internal/health"
	"github.com/noah-isme/toko-kasir/internal/resilience"
)

func TestReadyWhileDraining(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })

	handler := health.Handler{
		Checker:  stubChecker{},
		Breakers: map[string]*resilience.Breaker{"commit": resilience.NewBreaker(resilience.BreakerConfig{Target: "commit"})},
	}

	cases := []struct {
		name     string
		ready    bool
		wantCode int
		wantBody string
	}{
		{name: "serving", ready: true, wantCode: http.StatusOK, wantBody: `"breaker.commit":"closed"`},
		{name: "draining", ready: false, wantCode: http.StatusServiceUnavailable, wantBody: "dependencies unavailable"},
		{name: "back after restart", ready: true, wantCode: http.StatusOK, wantBody: `"db":"ok"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			health.SetReady(tc.ready)
			rec := httptest.NewRecorder()
			handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			require.Equal(t, tc.wantCode, rec.Code)
			require.Contains(t, rec.Body.String(), tc.wantBody)
		})
	}
}

func TestLiveIgnoresDraining(t *testing.T) {
	t.Cleanup(func() { health.SetReady(true) })
	health.SetReady(false)

	rec := httptest.NewRecorder()
	health.Handler{}.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
