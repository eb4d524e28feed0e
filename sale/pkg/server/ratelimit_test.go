package server_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/stagesale/sale/pkg/server"
)

func TestSale_Server_RateLimiter_Allow(t *testing.T) {
	t.Parallel()

	limiter := server.NewRateLimiter(clockwork.NewFakeClockAt(t0), rate.Limit(5), 5)
	for i := 0; i < 5; i++ {
		allowed, _ := limiter.Allow("caller:a")
		require.True(t, allowed, "request %d should be allowed", i+1)
	}
	allowed, retry := limiter.Allow("caller:a")
	require.False(t, allowed)
	require.Positive(t, retry)

	allowed, _ = limiter.Allow("caller:b")
	require.True(t, allowed, "a different key has its own budget")
}

func TestSale_Server_RateLimiter_Refill(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(t0)
	limiter := server.NewRateLimiter(clock, rate.Limit(10), 2)

	for i := 0; i < 2; i++ {
		allowed, _ := limiter.Allow("k")
		require.True(t, allowed)
	}
	allowed, _ := limiter.Allow("k")
	require.False(t, allowed)

	clock.Advance(150 * time.Millisecond)
	allowed, _ = limiter.Allow("k")
	require.True(t, allowed, "should be allowed after refill")
}

func TestSale_Server_RateLimiter_Prune(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(t0)
	limiter := server.NewRateLimiter(clock, rate.Limit(1), 1)
	limiter.Allow("old")
	clock.Advance(10 * time.Minute)
	limiter.Allow("new")

	require.Equal(t, 1, limiter.Prune())
}

func TestSale_Server_RateLimitMiddleware_JSONResponse(t *testing.T) {
	t.Parallel()

	limiter := server.NewRateLimiter(clockwork.NewFakeClockAt(t0), rate.Limit(1), 1)
	handler := server.RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/purchases", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body server.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "rate_limit_exceeded", body.Error)
	require.GreaterOrEqual(t, body.RetryAfter, 1)
}

func TestSale_Server_StatusFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusInternalServerError, server.StatusFor(errors.New("boom")))
}
