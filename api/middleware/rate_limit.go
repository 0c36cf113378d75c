package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saakshy/saakshy-backend/api/responses"
	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
	"github.com/saakshy/saakshy-backend/pkg/logger"
)

// RateLimiterStore is the counter surface used by PublicRateLimit.
type RateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// PublicRateLimitPolicy throttles a public record endpoint per client IP and
// per record id. A zero limit switches that dimension off.
type PublicRateLimitPolicy struct {
	name        string
	window      time.Duration
	ipLimit     int
	recordLimit int
	proxyHops   int
}

func NewPublicRateLimitPolicy(name string, window time.Duration, ipLimit, recordLimit int) PublicRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "public"
	}
	return PublicRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, recordLimit: recordLimit}
}

// WithTrustedProxyHops sets how many proxies in front of the API append to
// X-Forwarded-For. With zero hops the forwarding headers are ignored.
func (p PublicRateLimitPolicy) WithTrustedProxyHops(hops int) PublicRateLimitPolicy {
	if hops < 0 {
		hops = 0
	}
	p.proxyHops = hops
	return p
}

func (p PublicRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.recordLimit > 0)
}

// bucket is one counter a request is charged against.
type bucket struct {
	dimension string
	subject   string
	limit     int
}

func (p PublicRateLimitPolicy) buckets(r *http.Request) []bucket {
	all := []bucket{
		{dimension: "ip", subject: clientIP(r, p.proxyHops), limit: p.ipLimit},
		{dimension: "record", subject: chi.URLParam(r, "recordId"), limit: p.recordLimit},
	}
	active := all[:0]
	for _, b := range all {
		if b.limit > 0 && b.subject != "" {
			active = append(active, b)
		}
	}
	return active
}

// PublicRateLimit enforces the policy with fixed windows in redis. The record
// id comes from the {recordId} route parameter, so mount it inline on the route.
func PublicRateLimit(policy PublicRateLimitPolicy, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, b := range policy.buckets(r) {
				key := store.RateLimitKey(strings.Join([]string{policy.name, b.dimension, b.subject}, ":"))
				hits, err := store.IncrWithTTL(ctx, key, policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if hits > int64(b.limit) {
					policy.reject(ctx, logg, w, b, hits)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p PublicRateLimitPolicy) reject(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, b bucket, hits int64) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":    p.name,
			"dimension": b.dimension,
			"subject":   b.subject,
			"hits":      hits,
			"limit":     b.limit,
		}), "public.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(p.window.Round(time.Second).Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// clientIP returns the address the outermost trusted proxy saw. Each of the
// hops trusted proxies appends one X-Forwarded-For entry, so the client is the
// entry hops places from the right; anything further left is client supplied.
func clientIP(r *http.Request, hops int) string {
	if hops > 0 {
		if forwarded := r.Header.Values("X-Forwarded-For"); len(forwarded) > 0 {
			entries := strings.Split(strings.Join(forwarded, ","), ",")
			idx := len(entries) - hops
			if idx < 0 {
				idx = 0
			}
			if ip := strings.TrimSpace(entries[idx]); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
