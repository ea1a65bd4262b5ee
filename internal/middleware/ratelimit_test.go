package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{Enabled: false, RPS: 1, Burst: 1})(http.HandlerFunc(okHandler))

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRateLimitMiddleware_BurstExceeded(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{
		Enabled: true,
		RPS:     1,
		Burst:   2,
	})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/reports/payroll", nil)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, ErrorBody{Error: "rate limit exceeded", Code: "RATE_LIMITED"}, body)
}

func TestTokenBucket_Refill(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	b := newTokenBucket(2, 2, clock)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	now = now.Add(500 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	now = now.Add(time.Hour)
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "refill is capped at burst")
}

func TestTokenBucket_Unlimited(t *testing.T) {
	b := newTokenBucket(0, 5, time.Now)
	for i := 0; i < 100; i++ {
		require.True(t, b.Allow())
	}
}
