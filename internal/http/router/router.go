// Package router assembles the HTTP surface: integration routes, health
// probes, and metrics, each behind the right middleware chain.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	httpx "github.com/skillsync/toolbridge/internal/http"
	"github.com/skillsync/toolbridge/internal/http/controllers/health"
	"github.com/skillsync/toolbridge/internal/http/controllers/integrations"
	httperrors "github.com/skillsync/toolbridge/internal/http/errors"
	mw "github.com/skillsync/toolbridge/internal/http/middlewares"
	"github.com/skillsync/toolbridge/internal/rate"
)

// Deps carries everything the router mounts.
type Deps struct {
	Integrations *integrations.Controller
	Health       *health.Controller
	Metrics      http.Handler

	// InitiateLimiter guards flow starts; CallbackLimiter guards the
	// redirect target, which is reachable without gateway identity.
	InitiateLimiter rate.Limiter
	CallbackLimiter rate.Limiter
}

// New builds the service router.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithSecurityHeaders(),
		httpx.WithMetrics,
	)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	r.Get("/healthz", d.Health.Healthz)
	r.Get("/readyz", d.Health.Readyz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1/integrations", func(r chi.Router) {
		r.Use(mw.WithNoStore())

		// Provider redirect target: no gateway identity; the state token is
		// the authentication. Rate limited by IP.
		r.With(
			mw.WithRateLimit(d.CallbackLimiter, mw.IPRateKey),
			mw.WithLogging(),
		).Get("/callback", d.Integrations.Callback)

		// Everything else requires the gateway identity header.
		r.Group(func(r chi.Router) {
			r.Use(
				mw.WithIdentity(),
				mw.WithLogging(),
			)

			r.With(mw.WithRateLimit(d.InitiateLimiter, mw.UserRateKey)).
				Post("/{tool}/initiate", d.Integrations.Initiate)

			r.Get("/status", d.Integrations.Status)
			r.Get("/{tool}/token", d.Integrations.Token)
			r.Delete("/{tool}", d.Integrations.Disconnect)
		})
	})

	return r
}
