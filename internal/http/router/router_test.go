package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillsync/toolbridge/internal/broker"
	cachemem "github.com/skillsync/toolbridge/internal/cache/memory"
	"github.com/skillsync/toolbridge/internal/http/controllers/health"
	"github.com/skillsync/toolbridge/internal/http/controllers/integrations"
	"github.com/skillsync/toolbridge/internal/oauth"
	"github.com/skillsync/toolbridge/internal/provider"
	"github.com/skillsync/toolbridge/internal/rate"
	"github.com/skillsync/toolbridge/internal/security/secretbox"
	"github.com/skillsync/toolbridge/internal/security/statetoken"
	storemem "github.com/skillsync/toolbridge/internal/store/memory"
)

func newTestHandler(t *testing.T, opts ...func(*Deps)) http.Handler {
	t.Helper()

	provSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600}`))
	}))
	t.Cleanup(provSrv.Close)

	contracts := []provider.Contract{{
		ProviderID:         "fake",
		AuthorizeURL:       provSrv.URL + "/authorize",
		TokenURL:           provSrv.URL + "/token",
		ClientIDEnvKey:     "FAKE_CLIENT_ID",
		ClientSecretEnvKey: "FAKE_CLIENT_SECRET",
		RedirectPath:       "/v1/integrations/callback",
		Scopes:             []string{"read"},
		ToolIDs:            []string{"alpha"},
	}}
	registry, err := provider.NewRegistry(map[string]string{
		"FAKE_CLIENT_ID":     "fid",
		"FAKE_CLIENT_SECRET": "fsecret",
	}, contracts)
	require.NoError(t, err)

	master := []byte("0123456789abcdef0123456789abcdef")
	box, err := secretbox.New(master)
	require.NoError(t, err)

	b, err := broker.New(broker.Deps{
		Registry:      registry,
		Codec:         statetoken.New(statetoken.DeriveKey(master), 5*time.Minute),
		Box:           box,
		Store:         storemem.New(),
		Exchange:      oauth.NewClient(0),
		Cache:         cachemem.New(time.Minute),
		PublicBaseURL: "https://app.test",
	})
	require.NoError(t, err)

	deps := Deps{
		Integrations: integrations.NewController(b),
		Health:       health.NewController(nil),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return New(deps)
}

func TestRouter_IdentityRequired(t *testing.T) {
	h := newTestHandler(t)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/v1/integrations/alpha/initiate", nil),
		httptest.NewRequest(http.MethodGet, "/v1/integrations/status", nil),
		httptest.NewRequest(http.MethodGet, "/v1/integrations/alpha/token", nil),
		httptest.NewRequest(http.MethodDelete, "/v1/integrations/alpha", nil),
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", req.Method, req.URL.Path)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "UNAUTHORIZED", body["code"])
	}
}

func TestRouter_FullConnectFlow(t *testing.T) {
	h := newTestHandler(t)

	// Initiate.
	req := httptest.NewRequest(http.MethodPost, "/v1/integrations/alpha/initiate", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var initiate struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &initiate))
	authURL, err := url.Parse(initiate.AuthorizationURL)
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	// Callback, as the provider redirect: no identity header.
	req = httptest.NewRequest(http.MethodGet,
		"/v1/integrations/callback?state="+url.QueryEscape(state)+"&code=c0de", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var cb struct {
		ToolID string `json:"tool_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cb))
	require.Equal(t, "alpha", cb.ToolID)

	// Status reflects the connection.
	req = httptest.NewRequest(http.MethodGet, "/v1/integrations/status", nil)
	req.Header.Set("X-User-ID", "u1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Tools map[string]struct {
			Connected bool `json:"connected"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Tools["alpha"].Connected)

	// Token endpoint returns the live token.
	req = httptest.NewRequest(http.MethodGet, "/v1/integrations/alpha/token", nil)
	req.Header.Set("X-User-ID", "u1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "at-1")

	// Disconnect.
	req = httptest.NewRequest(http.MethodDelete, "/v1/integrations/alpha", nil)
	req.Header.Set("X-User-ID", "u1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouter_CallbackProviderError(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/integrations/callback?error=access_denied", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "AUTHORIZATION_DENIED")
}

func TestRouter_ErrorMapping(t *testing.T) {
	h := newTestHandler(t)

	// Unknown tool -> 404 UNKNOWN_TOOL.
	req := httptest.NewRequest(http.MethodPost, "/v1/integrations/nosuch/initiate", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "UNKNOWN_TOOL")

	// Token for a tool that was never connected -> 404 NOT_CONNECTED.
	req = httptest.NewRequest(http.MethodGet, "/v1/integrations/alpha/token", nil)
	req.Header.Set("X-User-ID", "u1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_CONNECTED")

	// Garbage state -> 400 INVALID_STATE.
	req = httptest.NewRequest(http.MethodGet, "/v1/integrations/callback?state=bogus&code=x", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_STATE")

	// Unrouted path -> 404 envelope.
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestRouter_SecurityHeaders(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRouter_RateLimit(t *testing.T) {
	h := newTestHandler(t, func(d *Deps) {
		d.InitiateLimiter = rate.NewMemoryLimiter(2, time.Minute)
	})

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/integrations/alpha/initiate", nil)
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		last = rec.Code
	}
	require.Equal(t, http.StatusTooManyRequests, last)
}

func TestRouter_Readyz(t *testing.T) {
	h := newTestHandler(t, func(d *Deps) {
		d.Health = health.NewController(map[string]health.Check{
			"postgres": func(context.Context) error { return errors.New("down") },
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "degraded")
}
