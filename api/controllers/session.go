package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/mosly/envelope-stock/api/middleware"
	"github.com/mosly/envelope-stock/api/responses"
	"github.com/mosly/envelope-stock/api/validators"
	"github.com/mosly/envelope-stock/pkg/auth/session"
	"github.com/mosly/envelope-stock/pkg/config"
	"github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/logger"
	"github.com/mosly/envelope-stock/pkg/security"
)

type sessionOpener interface {
	Open(ctx context.Context) (*session.Token, error)
}

type sessionRevoker interface {
	Revoke(ctx context.Context, accessID string) error
}

type sessionRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

type sessionResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionCreate exchanges the operator password for an access token.
func SessionCreate(cfg *config.Config, sessions sessionOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessions == nil {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeInternal, "session manager unavailable"))
			return
		}

		var req sessionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ok, err := security.VerifyPassword(req.Password, cfg.Operator.PasswordHash)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeInternal, err, "operator password hash is invalid"))
			return
		}
		if !ok {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeUnauthorized, "invalid password"))
			return
		}
		if logg != nil && security.NeedsRehash(cfg.Operator.PasswordHash, cfg.Password) {
			logg.Warn(r.Context(), "operator password hash is weaker than the configured argon2 cost; regenerate it with stockctl hash-password")
		}

		token, err := sessions.Open(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithOperator(r.Context(), token.SessionID), "operator session created")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sessionResponse{
			AccessToken: token.Value,
			TokenType:   "Bearer",
			ExpiresAt:   token.ExpiresAt,
		})
	}
}

// SessionDelete revokes the session of the presented token. It runs behind
// the auth middleware.
func SessionDelete(sessions sessionRevoker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessID := middleware.SessionIDFromContext(r.Context())
		if accessID == "" {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeUnauthorized, "missing session id"))
			return
		}
		if err := sessions.Revoke(r.Context(), accessID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}
