package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/mosly/envelope-stock/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// Caller ids are echoed into logs and error bodies, so only a conservative
// charset is accepted.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID keeps a well-formed X-Request-Id from the caller and mints a
// UUID otherwise. The id is returned in the response header.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !validRequestID.MatchString(id) {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			if logg != nil {
				r = r.WithContext(logg.WithRequestID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
