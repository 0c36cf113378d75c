package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redispkg "github.com/saakshy/saakshy-backend/pkg/redis"
)

func limitedRouter(policy PublicRateLimitPolicy, store RateLimiterStore) http.Handler {
	r := chi.NewRouter()
	r.With(PublicRateLimit(policy, store, nil)).Post("/records/{recordId}/confirm", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func miniredisLimiter(t *testing.T) (*redispkg.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redispkg.NewFromClient(raw), mr
}

func confirmFrom(h http.Handler, ip, recordID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/records/"+recordID+"/confirm", nil)
	req.RemoteAddr = ip + ":5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPublicRateLimitPerIP(t *testing.T) {
	store, _ := miniredisLimiter(t)
	h := limitedRouter(NewPublicRateLimitPolicy("public_confirm", time.Minute, 2, 0), store)

	assert.Equal(t, http.StatusOK, confirmFrom(h, "10.0.0.1", "a").Code)
	assert.Equal(t, http.StatusOK, confirmFrom(h, "10.0.0.1", "b").Code)

	blocked := confirmFrom(h, "10.0.0.1", "c")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "60", blocked.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, blocked))

	assert.Equal(t, http.StatusOK, confirmFrom(h, "10.0.0.2", "c").Code, "other ip has its own window")
}

func TestPublicRateLimitPerRecord(t *testing.T) {
	store, _ := miniredisLimiter(t)
	h := limitedRouter(NewPublicRateLimitPolicy("public_confirm", time.Minute, 0, 1), store)

	assert.Equal(t, http.StatusOK, confirmFrom(h, "10.0.0.1", "rec-1").Code)
	assert.Equal(t, http.StatusTooManyRequests, confirmFrom(h, "10.0.0.9", "rec-1").Code, "record limit spans ips")
	assert.Equal(t, http.StatusOK, confirmFrom(h, "10.0.0.9", "rec-2").Code)
}

func TestPublicRateLimitWindowResets(t *testing.T) {
	store, mr := miniredisLimiter(t)
	h := limitedRouter(NewPublicRateLimitPolicy(" Public_Confirm ", time.Minute, 1, 0), store)

	require.Equal(t, http.StatusOK, confirmFrom(h, "10.0.0.1", "rec-1").Code)
	require.Equal(t, http.StatusTooManyRequests, confirmFrom(h, "10.0.0.1", "rec-1").Code)
	assert.True(t, mr.Exists(store.RateLimitKey("public_confirm:ip:10.0.0.1")), "policy name is normalised into the key")

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, confirmFrom(h, "10.0.0.1", "rec-1").Code)
}

type failingLimiter struct{}

func (failingLimiter) IncrWithTTL(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("redis down")
}

func (failingLimiter) RateLimitKey(scope string) string { return scope }

func TestPublicRateLimitStoreFailure(t *testing.T) {
	h := limitedRouter(NewPublicRateLimitPolicy("public_confirm", time.Minute, 5, 5), failingLimiter{})
	assert.Equal(t, http.StatusServiceUnavailable, confirmFrom(h, "10.0.0.1", "rec-1").Code)
}

func TestPublicRateLimitDisabledPolicy(t *testing.T) {
	h := limitedRouter(NewPublicRateLimitPolicy("", 0, 1, 1), failingLimiter{})
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, confirmFrom(h, "10.0.0.1", "rec-1").Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		hops    int
		want    string
	}{
		{"single proxy takes rightmost hop", map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1"}, "10.0.0.9:1", 1, "10.0.0.1"},
		{"spoofed leading hop is skipped", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.7"}, "10.0.0.9:1", 1, "203.0.113.7"},
		{"two proxies", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.7, 10.0.0.1"}, "10.0.0.9:1", 2, "203.0.113.7"},
		{"fewer hops than proxies", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.9:1", 3, "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:1", 1, "198.51.100.2"},
		{"headers ignored without proxies", map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.2"}, "192.0.2.4:5555", 0, "192.0.2.4"},
		{"remote addr", nil, "192.0.2.4:5555", 1, "192.0.2.4"},
		{"unparseable remote", nil, "pipe", 0, "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.hops))
		})
	}
}

func TestPublicRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	store, _ := miniredisLimiter(t)
	policy := NewPublicRateLimitPolicy("public_confirm", time.Minute, 1, 0).WithTrustedProxyHops(1)
	h := limitedRouter(policy, store)

	send := func(spoofed string) int {
		req := httptest.NewRequest(http.MethodPost, "/records/rec-1/confirm", nil)
		req.RemoteAddr = "10.0.0.9:443"
		req.Header.Set("X-Forwarded-For", spoofed+", 203.0.113.7")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("2.2.2.2"), "rotating the client-supplied hop does not reset the window")
}
