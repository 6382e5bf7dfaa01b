package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mosly/envelope-stock/api/responses"
	"github.com/mosly/envelope-stock/pkg/config"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/logger"
	pkgredis "github.com/mosly/envelope-stock/pkg/redis"
)

const idempotencyHeader = "Idempotency-Key"

// maxIdempotencyKey keeps client keys from inflating Redis key names.
const maxIdempotencyKey = 200

// IdempotencyStore is the slice of the Redis client replays need.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// IdempotencyPolicy decides how long outcomes are kept. A reservation lives
// for Pending only, so a crashed request frees its key on its own.
type IdempotencyPolicy struct {
	TTL     time.Duration
	Pending time.Duration
}

func IdempotencyPolicyFrom(cfg config.IdempotencyConfig) IdempotencyPolicy {
	p := IdempotencyPolicy{TTL: cfg.TTL, Pending: cfg.PendingTTL}
	if p.TTL <= 0 {
		p.TTL = 7 * 24 * time.Hour
	}
	if p.Pending <= 0 || p.Pending > p.TTL {
		p.Pending = 2 * time.Minute
	}
	return p
}

// storedOutcome is what a replay writes back. A zero Status marks a
// reservation whose request is still running.
type storedOutcome struct {
	Fingerprint string          `json:"fingerprint"`
	Status      int             `json:"status,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
	Raw         []byte          `json:"raw,omitempty"`
}

func (o storedOutcome) pending() bool { return o.Status == 0 }

func (o storedOutcome) write(w http.ResponseWriter) {
	if o.ContentType != "" {
		w.Header().Set("Content-Type", o.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(o.Status)
	if len(o.Body) > 0 {
		_, _ = w.Write(o.Body)
		return
	}
	_, _ = w.Write(o.Raw)
}

// Idempotency makes a mutation safe to retry. The key is scoped to the
// operator and route; a reused key with a different body is rejected, a
// finished one is replayed and a running one is refused. Responses of 5xx
// drop the reservation so the client may try again.
func Idempotency(store IdempotencyStore, policy IdempotencyPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKey:
				responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "Idempotency-Key longer than %d characters", maxIdempotencyKey))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(idempotencyScope(r), clientKey)
			fingerprint := fingerprintOf(body)
			if logg != nil {
				ctx = logg.WithField(ctx, "idempotency_key", clientKey)
			}

			reserved, err := reserve(ctx, store, key, fingerprint, policy.Pending)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !reserved {
				replay(ctx, store, key, fingerprint, w, logg)
				return
			}

			capture := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r.WithContext(ctx))

			// the client may be gone; the outcome still has to be settled
			settle := context.WithoutCancel(ctx)
			if capture.statusCode() >= http.StatusInternalServerError {
				if err := store.Del(settle, key); err != nil && logg != nil {
					logg.Error(settle, "idempotency.release_failed", err)
				}
				return
			}
			if err := persist(settle, store, key, capture.outcome(fingerprint), policy.TTL); err != nil && logg != nil {
				logg.Error(settle, "idempotency.persist_failed", err)
			}
		})
	}
}

func reserve(ctx context.Context, store IdempotencyStore, key, fingerprint string, ttl time.Duration) (bool, error) {
	marker, err := json.Marshal(storedOutcome{Fingerprint: fingerprint})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency reservation")
	}
	ok, err := store.SetNX(ctx, key, string(marker), ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	return ok, nil
}

func replay(ctx context.Context, store IdempotencyStore, key, fingerprint string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, pkgredis.Nil) {
		// finished and released between SetNX and Get
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var outcome storedOutcome
	if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	switch {
	case outcome.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case outcome.pending():
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
	default:
		if logg != nil {
			logg.Info(ctx, "idempotency.replayed")
		}
		outcome.write(w)
	}
}

func persist(ctx context.Context, store IdempotencyStore, key string, outcome storedOutcome, ttl time.Duration) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload), ttl)
}

// idempotencyScope keeps keys from colliding across operators and endpoints.
func idempotencyScope(r *http.Request) string {
	return SubjectFromContext(r.Context()) + "|" + r.Method + "|" + strings.TrimSuffix(r.URL.Path, "/")
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(body))
	return hex.EncodeToString(sum[:])
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *captureWriter) outcome(fingerprint string) storedOutcome {
	o := storedOutcome{
		Fingerprint: fingerprint,
		Status:      c.statusCode(),
		ContentType: c.Header().Get("Content-Type"),
	}
	if body := c.body.Bytes(); json.Valid(body) {
		o.Body = append(json.RawMessage(nil), body...)
	} else {
		o.Raw = append([]byte(nil), body...)
	}
	return o
}
