package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/pkg/auth"
)

func newTestLimiter(t *testing.T, requests int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	config := &RateLimitConfig{RequestsPerWindow: requests, WindowDuration: time.Minute}
	return NewRateLimiter(client, config, "test"), mr
}

func TestRateLimiterAllow(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "caller")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRateLimiterWindowReset(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(2 * time.Minute)

	allowed, err = limiter.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "first")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "second")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiterRemaining(t *testing.T) {
	limiter, _ := newTestLimiter(t, 5)
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "caller")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	_, err = limiter.Allow(ctx, "caller")
	require.NoError(t, err)

	remaining, err = limiter.Remaining(ctx, "caller")
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestRateLimiterFailsOpenOnOutage(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1)
	mr.Close()

	allowed, err := limiter.Allow(context.Background(), "caller")
	require.Error(t, err)
	assert.True(t, allowed)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:51234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestRateLimitMiddlewareKeysByUser(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1)
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	authed := func(userID, addr string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		ctx := auth.WithContext(req.Context(), &auth.Context{Identity: auth.Identity{UserID: userID}})
		return req.WithContext(ctx)
	}

	// Same address, different users: separate windows.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(testUserID, "10.0.0.1:51234"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed("0d1e2f3a-4b5c-6d7e-8f90-a1b2c3d4e5f6", "10.0.0.1:51234"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authed(testUserID, "10.0.0.1:51234"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
