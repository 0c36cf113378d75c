package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/saakshy/saakshy-backend/api/responses"
	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
	"github.com/saakshy/saakshy-backend/pkg/logger"
	pkgredis "github.com/saakshy/saakshy-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader     = "Idempotency-Key"
	IdempotentReplayedHeader = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// an in-flight reservation outlives any sane request and then frees the key
	inFlightTTL = time.Minute
)

// routeTTL reports whether method+path is a replay-protected command and
// how long its result is kept.
func routeTTL(method, path string) (time.Duration, bool) {
	if method != http.MethodPost {
		return 0, false
	}
	switch {
	case path == "/api/v1/records":
		return defaultIdempotencyTTL, true
	case strings.HasPrefix(path, "/api/v1/records/") && strings.HasSuffix(path, "/pay"):
		// a replayed payment must never count twice against the balance
		return criticalIdempotencyTTL, true
	}
	return 0, false
}

// replay is what a key resolves to. Pending marks a request still running.
type replay struct {
	Fingerprint string `json:"fingerprint"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes record creation and payment logging safe to retry. The
// first request with a key reserves it, later ones replay its response, and
// a reused key with a different body is rejected. Server errors release the
// key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, protected := routeTTL(r.Method, r.URL.Path)
			if !protected || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				fail(pkgerrors.New(pkgerrors.CodeValidation, IdempotencyKeyHeader+" header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path}, "|"), clientKey)
			fingerprint := fingerprintOf(body)

			reserved, err := reserve(r, store, key, fingerprint)
			if err != nil {
				fail(err)
				return
			}
			if !reserved {
				existing, err := lookup(r, store, key)
				if err != nil {
					fail(err)
					return
				}
				switch {
				case existing == nil:
					fail(pkgerrors.New(pkgerrors.CodeConflict, "idempotency key released, retry the request"))
				case existing.Fingerprint != fingerprint:
					fail(pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				case existing.Pending:
					fail(pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
				default:
					existing.writeTo(w)
				}
				return
			}

			var captured bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&captured)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			done := replay{
				Fingerprint: fingerprint,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        captured.Bytes(),
			}
			if err := complete(r, store, key, done, ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency replay", err)
			}
		})
	}
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func reserve(r *http.Request, store pkgredis.IdempotencyStore, key, fingerprint string) (bool, error) {
	marker, err := json.Marshal(replay{Fingerprint: fingerprint, Pending: true})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency reservation")
	}
	ok, err := store.SetNX(r.Context(), key, string(marker), inFlightTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	return ok, nil
}

// lookup returns nil when the key vanished between the reservation attempt and the read.
func lookup(r *http.Request, store pkgredis.IdempotencyStore, key string) (*replay, error) {
	raw, err := store.Get(r.Context(), key)
	if errors.Is(err, pkgredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency key")
	}
	var stored replay
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency replay")
	}
	return &stored, nil
}

// complete swaps the reservation for the final replay.
func complete(r *http.Request, store pkgredis.IdempotencyStore, key string, done replay, ttl time.Duration) error {
	payload, err := json.Marshal(done)
	if err != nil {
		return err
	}
	if err := store.Del(r.Context(), key); err != nil {
		return err
	}
	_, err = store.SetNX(r.Context(), key, string(payload), ttl)
	return err
}

func (p *replay) writeTo(w http.ResponseWriter) {
	if p.ContentType != "" {
		w.Header().Set("Content-Type", p.ContentType)
	}
	w.Header().Set(IdempotentReplayedHeader, "true")
	w.WriteHeader(p.Status)
	_, _ = w.Write(p.Body)
}
