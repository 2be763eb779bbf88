// Package oauth performs the two network calls every provider requires:
// redeeming an authorization code for tokens, and redeeming a refresh token
// for a new access token. Responses are normalized into provider.TokenResult
// regardless of the provider's native shape.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skillsync/toolbridge/internal/provider"
)

const (
	// DefaultTimeout bounds every token-endpoint call so a hung provider
	// cannot stall the serving request.
	DefaultTimeout = 15 * time.Second

	transportRetryDelay = 500 * time.Millisecond
	maxErrorBody        = 2048
)

var (
	// ErrMalformedResponse means the provider answered 2xx but the response
	// lacked the required fields.
	ErrMalformedResponse = errors.New("malformed token response")

	// ErrRefreshRejected means the provider reports the refresh token as
	// revoked or expired. This is a credential problem, not a transient
	// failure: the connection requires full re-authorization.
	ErrRefreshRejected = errors.New("refresh token rejected")
)

// ExchangeError carries the provider's status and (capped) body for
// server-side diagnostics. It never contains token material.
type ExchangeError struct {
	Status int
	Body   string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.Status, e.Body)
}

// Client is the HTTP client for provider token endpoints.
type Client struct {
	http *http.Client
}

// NewClient builds a Client with the given timeout (DefaultTimeout when <= 0).
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewClientWithHTTP wraps an existing http.Client, for tests.
func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{http: hc}
}

// BuildAuthorizationURL assembles the standard authorization-code parameters
// plus any provider-specific extras from the contract.
func BuildAuthorizationURL(c provider.Contract, clientID, redirectURI, state string) string {
	u, err := url.Parse(c.AuthorizeURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(c.Scopes, " "))
	q.Set("state", state)
	for k, v := range c.ExtraAuthParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ExchangeCode redeems an authorization code at the contract's token endpoint.
func (cl *Client) ExchangeCode(ctx context.Context, c provider.Contract, creds provider.Credentials, code, redirectURI string) (*provider.TokenResult, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)

	raw, err := cl.postToken(ctx, c, form, false)
	if err != nil {
		return nil, err
	}
	return cl.normalize(ctx, c, raw)
}

// Refresh redeems a refresh token for a new access token. A provider-side
// rejection surfaces as ErrRefreshRejected and must not be retried.
func (cl *Client) Refresh(ctx context.Context, c provider.Contract, creds provider.Credentials, refreshToken string) (*provider.TokenResult, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)

	raw, err := cl.postToken(ctx, c, form, true)
	if err != nil {
		return nil, err
	}
	tr, err := cl.normalize(ctx, c, raw)
	if err != nil {
		return nil, err
	}
	// Providers that rotate refresh tokens return a new one; those that do
	// not expect the caller to keep using the old one.
	if tr.RefreshToken == "" {
		tr.RefreshToken = refreshToken
	}
	return tr, nil
}

// postToken POSTs the form and decodes the JSON body. Transport-level
// failures get one bounded retry; credential-level failures never do.
func (cl *Client) postToken(ctx context.Context, c provider.Contract, form url.Values, refreshGrant bool) (map[string]any, error) {
	resp, err := cl.doWithRetry(ctx, c.TokenURL, form)
	if err != nil {
		return nil, fmt.Errorf("token endpoint %s: %w", c.ProviderID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("token endpoint %s: read body: %w", c.ProviderID, err)
	}

	if resp.StatusCode/100 != 2 {
		if refreshGrant && isRefreshRejection(body) {
			return nil, ErrRefreshRejected
		}
		return nil, &ExchangeError{Status: resp.StatusCode, Body: capBody(body)}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: not JSON", ErrMalformedResponse)
	}

	// GitHub reports errors with a 200 and an error field in the body.
	if errCode, _ := raw["error"].(string); errCode != "" {
		if refreshGrant && isRejectionCode(errCode) {
			return nil, ErrRefreshRejected
		}
		desc, _ := raw["error_description"].(string)
		return nil, &ExchangeError{Status: resp.StatusCode, Body: capBody([]byte(errCode + ": " + desc))}
	}
	return raw, nil
}

func (cl *Client) doWithRetry(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	resp, err := cl.post(ctx, endpoint, form)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	// Timeout or connection reset: one retry after a short backoff. The call
	// is idempotent from our side.
	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(transportRetryDelay):
	}
	return cl.post(ctx, endpoint, form)
}

func (cl *Client) post(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return cl.http.Do(req)
}

// normalize extracts the common fields, runs the contract's per-provider
// normalization, and validates the result.
func (cl *Client) normalize(ctx context.Context, c provider.Contract, raw map[string]any) (*provider.TokenResult, error) {
	tr := &provider.TokenResult{Metadata: map[string]string{}}

	tr.AccessToken, _ = raw["access_token"].(string)
	tr.RefreshToken, _ = raw["refresh_token"].(string)
	if exp, ok := raw["expires_in"].(float64); ok {
		tr.ExpiresIn = int64(exp)
	}
	if scope, _ := raw["scope"].(string); scope != "" {
		tr.Scopes = splitScopes(scope)
	}

	if c.Normalize != nil {
		if err := c.Normalize(ctx, cl.http, raw, tr); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, c.ProviderID, err)
		}
	}

	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access_token", ErrMalformedResponse)
	}
	return tr, nil
}

// capBody truncates a provider error body so a misbehaving endpoint cannot
// bloat logs or error values.
func capBody(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}

func isRefreshRejection(body []byte) bool {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return false
	}
	return isRejectionCode(e.Error)
}

func isRejectionCode(code string) bool {
	switch code {
	case "invalid_grant", "invalid_token", "token_revoked", "token_expired":
		return true
	}
	return false
}

// splitScopes handles both space-delimited (RFC 6749) and comma-delimited
// (GitHub) scope strings.
func splitScopes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
