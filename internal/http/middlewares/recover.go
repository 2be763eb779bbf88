package middlewares

import (
	"net/http"

	httperrors "github.com/skillsync/toolbridge/internal/http/errors"
	"github.com/skillsync/toolbridge/internal/observability/logger"
)

// WithRecover turns panics into a 500 response instead of killing the server.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						logger.Op("recover"),
						logger.Any("panic", rec),
					)
					httperrors.WriteError(w, httperrors.ErrInternalServerError.WithDetail("panic recovered"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
