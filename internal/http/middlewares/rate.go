package middlewares

import (
	"net/http"
	"strconv"
	"time"

	httperrors "github.com/skillsync/toolbridge/internal/http/errors"
	"github.com/skillsync/toolbridge/internal/observability/logger"
	"github.com/skillsync/toolbridge/internal/rate"
)

// RateKeyFunc generates the rate-limit key for a request.
type RateKeyFunc func(r *http.Request) string

// IPRateKey keys on client IP and path.
func IPRateKey(r *http.Request) string {
	return clientIP(r) + "|" + r.URL.Path
}

// UserRateKey keys on the authenticated user when present, falling back to
// client IP. Keeps one noisy user from consuming a shared IP's budget.
func UserRateKey(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != "" {
		return "u:" + userID + "|" + r.URL.Path
	}
	return IPRateKey(r)
}

// WithRateLimit enforces the limiter on each request. A limiter failure
// (e.g. redis down) lets the request through: availability over strictness.
func WithRateLimit(limiter rate.Limiter, keyFunc RateKeyFunc) Middleware {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if keyFunc == nil {
		keyFunc = IPRateKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), keyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter error", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			if !res.Allowed {
				if res.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				}
				if res.WindowTTL > 0 {
					resetAt := time.Now().Add(res.WindowTTL).Unix()
					w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
				}
				httperrors.WriteError(w, httperrors.ErrRateLimitExceeded)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
