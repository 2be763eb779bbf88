package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/skillsync/toolbridge/internal/provider"
)

func testContract(tokenURL string) provider.Contract {
	return provider.Contract{
		ProviderID:         "testprov",
		AuthorizeURL:       "https://example.test/authorize",
		TokenURL:           tokenURL,
		ClientIDEnvKey:     "TP_ID",
		ClientSecretEnvKey: "TP_SECRET",
		RedirectPath:       "/v1/integrations/callback",
		Scopes:             []string{"read", "write"},
		ToolIDs:            []string{"testtool"},
	}
}

var creds = provider.Credentials{ClientID: "cid", ClientSecret: "csecret"}

func TestBuildAuthorizationURL(t *testing.T) {
	t.Parallel()
	c := testContract("https://example.test/token")
	c.ExtraAuthParams = map[string]string{"access_type": "offline"}

	raw := BuildAuthorizationURL(c, "cid", "https://app.test/v1/integrations/callback", "st8")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q := u.Query()
	want := map[string]string{
		"response_type": "code",
		"client_id":     "cid",
		"redirect_uri":  "https://app.test/v1/integrations/callback",
		"scope":         "read write",
		"state":         "st8",
		"access_type":   "offline",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Fatalf("param %s: got %q want %q", k, got, v)
		}
	}
}

func TestExchangeCode_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("code"); got != "c0de" {
			t.Errorf("code = %q", got)
		}
		if got := r.PostForm.Get("client_secret"); got != "csecret" {
			t.Errorf("client_secret = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600,"scope":"read,write"}`))
	}))
	defer srv.Close()

	cl := NewClient(0)
	tr, err := cl.ExchangeCode(context.Background(), testContract(srv.URL), creds, "c0de", "https://app.test/cb")
	if err != nil {
		t.Fatalf("ExchangeCode err: %v", err)
	}
	if tr.AccessToken != "at-1" || tr.RefreshToken != "rt-1" || tr.ExpiresIn != 3600 {
		t.Fatalf("unexpected result: %+v", tr)
	}
	if len(tr.Scopes) != 2 || tr.Scopes[0] != "read" || tr.Scopes[1] != "write" {
		t.Fatalf("scopes: %v", tr.Scopes)
	}
}

func TestExchangeCode_NonOKStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream sad"))
	}))
	defer srv.Close()

	cl := NewClient(0)
	_, err := cl.ExchangeCode(context.Background(), testContract(srv.URL), creds, "c0de", "cb")
	var ee *ExchangeError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExchangeError, got %v", err)
	}
	if ee.Status != http.StatusBadGateway {
		t.Fatalf("status: %d", ee.Status)
	}
}

func TestExchangeCode_ErrorBodyCapped(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 10*maxErrorBody)))
	}))
	defer srv.Close()

	cl := NewClient(0)
	_, err := cl.ExchangeCode(context.Background(), testContract(srv.URL), creds, "c0de", "cb")
	var ee *ExchangeError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExchangeError, got %v", err)
	}
	if len(ee.Body) != maxErrorBody {
		t.Fatalf("body not capped: %d bytes", len(ee.Body))
	}
}

func TestExchangeCode_ErrorInOKBody(t *testing.T) {
	t.Parallel()
	// GitHub style: HTTP 200 carrying an error field.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"bad_verification_code","error_description":"expired"}`))
	}))
	defer srv.Close()

	cl := NewClient(0)
	_, err := cl.ExchangeCode(context.Background(), testContract(srv.URL), creds, "c0de", "cb")
	var ee *ExchangeError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExchangeError, got %v", err)
	}
}

func TestExchangeCode_MissingAccessToken(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer srv.Close()

	cl := NewClient(0)
	_, err := cl.ExchangeCode(context.Background(), testContract(srv.URL), creds, "c0de", "cb")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestRefresh_Rejected(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"status 400 invalid_grant", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}},
		{"ok body token_revoked", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":"token_revoked"}`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.h)
			defer srv.Close()

			cl := NewClient(0)
			_, err := cl.Refresh(context.Background(), testContract(srv.URL), creds, "rt-old")
			if !errors.Is(err, ErrRefreshRejected) {
				t.Fatalf("expected ErrRefreshRejected, got %v", err)
			}
		})
	}
}

func TestRefresh_KeepsOldRefreshTokenWhenNotRotated(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "rt-old" {
			t.Errorf("refresh_token = %q", got)
		}
		w.Write([]byte(`{"access_token":"at-2","expires_in":1800}`))
	}))
	defer srv.Close()

	cl := NewClient(0)
	tr, err := cl.Refresh(context.Background(), testContract(srv.URL), creds, "rt-old")
	if err != nil {
		t.Fatalf("Refresh err: %v", err)
	}
	if tr.AccessToken != "at-2" {
		t.Fatalf("access token: %q", tr.AccessToken)
	}
	if tr.RefreshToken != "rt-old" {
		t.Fatalf("refresh token not carried over: %q", tr.RefreshToken)
	}
}

func TestExchangeCode_SlackShape(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"ok": true,
			"team": {"id": "T123", "name": "acme"},
			"authed_user": {"id": "U42", "access_token": "xoxp-1", "expires_in": 43200}
		}`))
	}))
	defer srv.Close()

	var slack provider.Contract
	for _, c := range provider.Builtin() {
		if c.ProviderID == "slack" {
			slack = c
		}
	}
	slack.TokenURL = srv.URL

	cl := NewClient(0)
	tr, err := cl.ExchangeCode(context.Background(), slack, creds, "c0de", "cb")
	if err != nil {
		t.Fatalf("ExchangeCode err: %v", err)
	}
	if tr.AccessToken != "xoxp-1" {
		t.Fatalf("access token not lifted from authed_user: %q", tr.AccessToken)
	}
	if tr.ExpiresIn != 43200 {
		t.Fatalf("expires_in: %d", tr.ExpiresIn)
	}
	if tr.Metadata["team_id"] != "T123" || tr.Metadata["authed_user_id"] != "U42" {
		t.Fatalf("metadata: %v", tr.Metadata)
	}
}

func TestExchangeCode_SlackNotOK(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error": "invalid_code"}`))
	}))
	defer srv.Close()

	var slack provider.Contract
	for _, c := range provider.Builtin() {
		if c.ProviderID == "slack" {
			slack = c
		}
	}
	slack.TokenURL = srv.URL

	cl := NewClient(0)
	_, err := cl.ExchangeCode(context.Background(), slack, creds, "c0de", "cb")
	if err == nil {
		t.Fatalf("expected error for ok=false")
	}
}
