// Package provider holds the static contract table for every OAuth provider
// the broker can talk to, and the registry that resolves logical tools to
// those contracts.
//
// A Contract is pure data plus a small normalization hook; it performs no I/O
// on its own. One provider app registration may serve several logical tools
// (e.g. a single Atlassian app serving both the issue tracker and the wiki),
// which is why ToolIDs is a set.
package provider

import (
	"context"
	"net/http"
)

// TokenResult is the normalized outcome of a token-endpoint call, regardless
// of the provider's native response shape.
type TokenResult struct {
	AccessToken  string
	RefreshToken string            // empty when the provider issues none
	ExpiresIn    int64             // seconds; 0 means the provider reported no expiry
	Scopes       []string          // scopes actually granted
	Metadata     map[string]string // provider extras (cloud id, team id, ...)
}

// NormalizeFunc reshapes a provider's raw token response into the normalized
// result. The raw decoded JSON is passed alongside the generically extracted
// result so a provider can lift nested fields (Slack's authed_user block) or
// perform the single follow-up lookup some providers require to resolve a
// tenant identifier (Atlassian's accessible-resources call). It must never
// place token material into tr.Metadata.
type NormalizeFunc func(ctx context.Context, hc *http.Client, raw map[string]any, tr *TokenResult) error

// Contract describes one provider app registration.
type Contract struct {
	ProviderID         string
	AuthorizeURL       string
	TokenURL           string
	ClientIDEnvKey     string
	ClientSecretEnvKey string
	RedirectPath       string
	Scopes             []string
	ToolIDs            []string
	// ExtraAuthParams are provider-specific authorization parameters
	// (offline access, consent prompt, audience).
	ExtraAuthParams map[string]string
	Normalize       NormalizeFunc
}

// Credentials is a provider app's client id/secret pair, resolved from the
// environment snapshot at registry construction.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both values are present.
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}
