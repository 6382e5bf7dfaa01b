package middleware

import (
	"context"
	"net/http"

	"github.com/mosly/envelope-stock/api/responses"
	"github.com/mosly/envelope-stock/api/validators"
	"github.com/mosly/envelope-stock/pkg/auth"
	"github.com/mosly/envelope-stock/pkg/logger"
)

// Authenticator resolves a bearer token to live session claims. Failures
// carry UNAUTHORIZED or DEPENDENCY_ERROR codes.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*auth.AccessTokenClaims, error)
}

// Auth admits requests holding a live operator token and stores the session
// in the context for handlers and logs.
func Auth(authn Authenticator, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := validators.BearerToken(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			claims, err := authn.Authenticate(r.Context(), raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithSession(r.Context(), claims.Subject, claims.ID)
			if logg != nil {
				ctx = logg.WithOperator(ctx, claims.ID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
