package middlewares

import (
	"net/http"
	"strings"

	httperrors "github.com/skillsync/toolbridge/internal/http/errors"
)

// UserIDHeader is set by the upstream gateway after it authenticates the
// caller. This service trusts it; it must never be reachable directly.
const UserIDHeader = "X-User-ID"

// WithIdentity extracts the authenticated user id from the gateway header and
// puts it in the context. Requests without one are rejected.
func WithIdentity() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if userID == "" {
				httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("missing user identity"))
				return
			}
			next.ServeHTTP(w, r.WithContext(setUserID(r.Context(), userID)))
		})
	}
}
