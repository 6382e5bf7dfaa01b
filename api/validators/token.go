package validators

import (
	"net/http"
	"strings"

	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
)

// BearerToken extracts the token from the Authorization header. The "Bearer"
// scheme is optional but a bare scheme without a token is rejected.
func BearerToken(r *http.Request) (string, error) {
	fields := strings.Fields(r.Header.Get("Authorization"))
	switch {
	case len(fields) == 2 && strings.EqualFold(fields[0], "bearer"):
		return fields[1], nil
	case len(fields) == 1 && !strings.EqualFold(fields[0], "bearer"):
		return fields[0], nil
	}
	return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
}
