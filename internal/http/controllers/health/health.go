// Package health contains the liveness and readiness controllers.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/skillsync/toolbridge/internal/observability/logger"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Controller serves /healthz and /readyz.
type Controller struct {
	checks map[string]Check
}

func NewController(checks map[string]Check) *Controller {
	return &Controller{checks: checks}
}

// Healthz reports process liveness only.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readyz probes every registered dependency with a short deadline and
// reports per-check results. Any failure turns the whole response 503.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(c.checks))
	healthy := true
	for name, check := range c.checks {
		if err := check(ctx); err != nil {
			logger.From(r.Context()).Warn("readiness check failed",
				logger.String("check", name), logger.Err(err))
			results[name] = "unavailable"
			healthy = false
			continue
		}
		results[name] = "ok"
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": results,
	})
}
