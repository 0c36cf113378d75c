package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

const corsMaxAgeSeconds = 300

// CORS applies the configured origin allow-list. A "*" entry opens the API to
// any origin but then drops credentialed requests, which browsers refuse to
// combine with a wildcard anyway.
func CORS(origins []string) func(http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			IdempotencyKeyHeader,
			RequestIDHeader,
		},
		ExposedHeaders:   []string{RequestIDHeader, IdempotentReplayedHeader, "Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           corsMaxAgeSeconds,
	}).Handler
}
