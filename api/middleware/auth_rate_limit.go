package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/mosly/envelope-stock/api/responses"
	"github.com/mosly/envelope-stock/pkg/config"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/logger"
)

type rateCounter interface {
	IncrWithTTL(ctx context.Context, key string, window time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// RateLimitPolicy is a fixed window per client address. A zero Window or
// Limit disables it.
type RateLimitPolicy struct {
	Name       string
	Window     time.Duration
	Limit      int
	TrustProxy bool
}

// LoginRateLimit is the policy guarding POST /session.
func LoginRateLimit(cfg config.AuthRateLimitConfig) RateLimitPolicy {
	return RateLimitPolicy{
		Name:       "login",
		Window:     cfg.LoginWindow,
		Limit:      cfg.LoginIPLimit,
		TrustProxy: cfg.TrustProxy,
	}
}

func (p RateLimitPolicy) retryAfter() string {
	return strconv.Itoa(int(math.Ceil(p.Window.Seconds())))
}

// RateLimit counts requests per client address and answers 429 once a
// window's limit is spent. Counter failures fail closed with 503.
func RateLimit(policy RateLimitPolicy, store rateCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if policy.Window <= 0 || policy.Limit <= 0 || store == nil {
			return next
		}
		limit := strconv.Itoa(policy.Limit)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			addr := clientAddr(r, policy.TrustProxy)

			count, err := store.IncrWithTTL(ctx, store.RateLimitKey(policy.Name+":ip:"+addr), policy.Window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}

			remaining := max(int64(policy.Limit)-count, 0)
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(policy.Limit) {
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{
						"policy":   policy.Name,
						"client":   addr,
						"attempts": count,
						"limit":    policy.Limit,
					})
				}
				w.Header().Set("Retry-After", policy.retryAfter())
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr is the first valid address in X-Forwarded-For or X-Real-IP when
// proxies are trusted, else the socket peer.
func clientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); first != "" {
			if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return addr.String()
			}
		}
		if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return addr.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
