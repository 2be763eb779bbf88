// Package integrations contains the controllers for the /v1/integrations
// endpoints. Controllers stay thin: decode, call the broker, map errors.
package integrations

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skillsync/toolbridge/internal/broker"
	httperrors "github.com/skillsync/toolbridge/internal/http/errors"
	"github.com/skillsync/toolbridge/internal/http/dto/integrations"
	"github.com/skillsync/toolbridge/internal/http/middlewares"
	"github.com/skillsync/toolbridge/internal/oauth"
	"github.com/skillsync/toolbridge/internal/observability/logger"
	"github.com/skillsync/toolbridge/internal/provider"
)

// Controller serves the integration endpoints on top of the broker.
type Controller struct {
	broker *broker.Broker
}

func NewController(b *broker.Broker) *Controller {
	return &Controller{broker: b}
}

// Initiate handles POST /v1/integrations/{tool}/initiate.
func (c *Controller) Initiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Initiate"))

	userID := middlewares.GetUserID(ctx)
	toolID := chi.URLParam(r, "tool")

	authURL, err := c.broker.Initiate(ctx, userID, toolID)
	if err != nil {
		httperrors.WriteError(w, mapBrokerError(err))
		return
	}

	log.Debug("initiate issued", logger.ToolID(toolID))
	writeJSON(w, http.StatusOK, integrations.InitiateResponse{AuthorizationURL: authURL})
}

// Callback handles GET /v1/integrations/callback, the provider redirect
// target. It is the one route without gateway identity: the user is bound by
// the state token, not a header.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Callback"))

	q := r.URL.Query()
	if errCode := q.Get("error"); errCode != "" {
		// The user denied consent, or the provider failed before issuing a
		// code. Nothing was stored; the flow just restarts.
		log.Warn("provider returned error on callback", logger.String("provider_error", errCode))
		httperrors.WriteError(w, httperrors.ErrAuthorizationDenied.WithDetail(errCode))
		return
	}

	state := q.Get("state")
	code := q.Get("code")
	if state == "" || code == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("state and code are required"))
		return
	}

	summary, err := c.broker.HandleCallback(ctx, state, code)
	if err != nil {
		httperrors.WriteError(w, mapBrokerError(err))
		return
	}

	writeJSON(w, http.StatusOK, integrations.CallbackResponse{
		ToolID:      summary.ToolID,
		ConnectedAt: summary.ConnectedAt,
		Scopes:      summary.Scopes,
	})
}

// Token handles GET /v1/integrations/{tool}/token. In-cluster callers use it
// to obtain a live access token; the response is never cacheable.
func (c *Controller) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middlewares.GetUserID(ctx)
	toolID := chi.URLParam(r, "tool")

	token, err := c.broker.GetValidToken(ctx, userID, toolID)
	if err != nil {
		httperrors.WriteError(w, mapBrokerError(err))
		return
	}

	writeJSON(w, http.StatusOK, integrations.TokenResponse{AccessToken: token})
}

// Status handles GET /v1/integrations/status.
func (c *Controller) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := c.broker.Status(ctx, middlewares.GetUserID(ctx))
	if err != nil {
		httperrors.WriteError(w, mapBrokerError(err))
		return
	}

	out := make(map[string]integrations.ToolStatus, len(status))
	for tool, st := range status {
		out[tool] = integrations.ToolStatus{
			Connected:   st.Connected,
			ConnectedAt: st.ConnectedAt,
			Metadata:    st.Metadata,
		}
	}
	writeJSON(w, http.StatusOK, integrations.StatusResponse{Tools: out})
}

// Disconnect handles DELETE /v1/integrations/{tool}.
func (c *Controller) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middlewares.GetUserID(ctx)
	toolID := chi.URLParam(r, "tool")

	if err := c.broker.Disconnect(ctx, userID, toolID); err != nil {
		httperrors.WriteError(w, mapBrokerError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mapBrokerError translates the domain taxonomy into the client envelope.
// Provider exchange detail never reaches the client; it is already in the
// server logs at the point of failure.
func mapBrokerError(err error) *httperrors.AppError {
	var exchangeErr *oauth.ExchangeError
	switch {
	case errors.Is(err, provider.ErrUnknownTool):
		return httperrors.ErrUnknownTool
	case errors.Is(err, broker.ErrToolUnavailable):
		return httperrors.ErrToolUnavailable
	case errors.Is(err, broker.ErrInvalidState):
		return httperrors.ErrInvalidState
	case errors.Is(err, broker.ErrNotConnected):
		return httperrors.ErrNotConnected
	case errors.Is(err, broker.ErrReauthorizationRequired):
		return httperrors.ErrReauthorizationRequired
	case errors.As(err, &exchangeErr), errors.Is(err, oauth.ErrMalformedResponse):
		return httperrors.ErrExchangeFailed
	default:
		return httperrors.ErrInternalServerError.WithCause(err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
