// Package integrations holds the request/response shapes for the
// /v1/integrations endpoints.
package integrations

import "time"

// InitiateResponse carries the provider URL the frontend must redirect to.
type InitiateResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// CallbackResponse confirms an established connection. Never carries tokens.
type CallbackResponse struct {
	ToolID      string    `json:"tool_id"`
	ConnectedAt time.Time `json:"connected_at"`
	Scopes      []string  `json:"scopes,omitempty"`
}

// TokenResponse carries a live access token to an in-cluster caller.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// StatusResponse maps tool id to its connection state.
type StatusResponse struct {
	Tools map[string]ToolStatus `json:"tools"`
}

// ToolStatus mirrors the broker projection.
type ToolStatus struct {
	Connected   bool              `json:"connected"`
	ConnectedAt *time.Time        `json:"connected_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
