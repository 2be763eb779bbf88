// Package broker orchestrates the OAuth integration flows: initiate,
// callback, token access with transparent refresh, status, and disconnect.
//
// The broker itself is stateless across requests; the credential store is
// the only shared mutable resource, and its per-row atomic upsert is what
// makes concurrent callbacks and refreshes converge (last writer wins).
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skillsync/toolbridge/internal/cache"
	"github.com/skillsync/toolbridge/internal/metrics"
	"github.com/skillsync/toolbridge/internal/oauth"
	"github.com/skillsync/toolbridge/internal/observability/logger"
	"github.com/skillsync/toolbridge/internal/provider"
	"github.com/skillsync/toolbridge/internal/security/secretbox"
	"github.com/skillsync/toolbridge/internal/security/statetoken"
	"github.com/skillsync/toolbridge/internal/store"
)

// DefaultRefreshSkew refreshes tokens within this margin of expiry instead
// of only after it, so in-flight API calls don't race an expiring token.
const DefaultRefreshSkew = 60 * time.Second

// Deps wires a Broker.
type Deps struct {
	Registry      *provider.Registry
	Codec         *statetoken.Codec
	Box           *secretbox.Box
	Store         store.Repository
	Exchange      *oauth.Client
	Cache         cache.Cache // records state-nonce consumption
	PublicBaseURL string
	RefreshSkew   time.Duration
	Now           func() time.Time
}

// Broker composes the registry, state codec, cipher, exchange client, and
// credential store into the public operation set.
type Broker struct {
	registry *provider.Registry
	codec    *statetoken.Codec
	box      *secretbox.Box
	store    store.Repository
	exchange *oauth.Client
	cache    cache.Cache
	baseURL  string
	skew     time.Duration
	now      func() time.Time

	// Dedupes concurrent refreshes of the same (user, tool) in-process.
	// Cross-process duplicates stay harmless: refresh is non-destructive
	// and the store upsert converges.
	refreshGroup singleflight.Group
}

// New validates deps and builds a Broker.
func New(d Deps) (*Broker, error) {
	switch {
	case d.Registry == nil:
		return nil, errors.New("broker: registry required")
	case d.Codec == nil:
		return nil, errors.New("broker: state codec required")
	case d.Box == nil:
		return nil, errors.New("broker: cipher required")
	case d.Store == nil:
		return nil, errors.New("broker: store required")
	case d.Exchange == nil:
		return nil, errors.New("broker: exchange client required")
	case d.Cache == nil:
		return nil, errors.New("broker: cache required")
	case d.PublicBaseURL == "":
		return nil, errors.New("broker: public base URL required")
	}
	if d.RefreshSkew <= 0 {
		d.RefreshSkew = DefaultRefreshSkew
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Broker{
		registry: d.Registry,
		codec:    d.Codec,
		box:      d.Box,
		store:    d.Store,
		exchange: d.Exchange,
		cache:    d.Cache,
		baseURL:  d.PublicBaseURL,
		skew:     d.RefreshSkew,
		now:      d.Now,
	}, nil
}

// ConnectionSummary is the non-secret result of a successful callback.
type ConnectionSummary struct {
	ToolID      string    `json:"tool_id"`
	ConnectedAt time.Time `json:"connected_at"`
	Scopes      []string  `json:"scopes"`
}

// ToolStatus is the read-only projection exposed per tool. It never carries
// token material; Metadata holds display-safe provider extras only.
type ToolStatus struct {
	Connected   bool              `json:"connected"`
	ConnectedAt *time.Time        `json:"connected_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Initiate validates tool availability, issues a state token, and returns
// the provider authorization URL the controller should redirect to.
func (b *Broker) Initiate(ctx context.Context, userID, toolID string) (string, error) {
	contract, err := b.registry.Resolve(toolID)
	if err != nil {
		return "", err
	}
	creds, ok := b.registry.Credentials(contract.ProviderID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolUnavailable, toolID)
	}

	state, _, err := b.codec.Issue(userID, toolID)
	if err != nil {
		return "", err
	}

	authURL := oauth.BuildAuthorizationURL(contract, creds.ClientID, b.redirectURI(contract), state)
	logger.From(ctx).With(logger.Component("broker")).Debug("initiated connection flow",
		logger.UserID(userID), logger.ToolID(toolID), logger.Provider(contract.ProviderID))
	return authURL, nil
}

// HandleCallback verifies the returned state, redeems the code, encrypts the
// tokens, and upserts the connection. The upsert supersedes any prior row:
// reconnect always wins over a stale entry, and a replayed callback can at
// worst re-establish the same connection.
func (b *Broker) HandleCallback(ctx context.Context, state, code string) (*ConnectionSummary, error) {
	log := logger.From(ctx).With(logger.Component("broker"))

	claims, err := b.codec.Verify(state)
	if err != nil {
		log.Warn("state verification failed", logger.Err(err))
		return nil, ErrInvalidState
	}

	// Single-use: the codec is stateless, so consumption is recorded here.
	ttl := claims.ExpiresAt.Time.Sub(b.now()) + time.Minute
	firstUse, err := b.cache.Add(ctx, "state:"+claims.Nonce, []byte("1"), ttl)
	if err != nil {
		// Without the replay record the state cannot be trusted. Fail closed.
		log.Error("state cache unavailable",
			logger.UserID(claims.UserID), logger.ToolID(claims.ToolID), logger.Err(err))
		return nil, ErrInvalidState
	}
	if !firstUse {
		log.Warn("state replay detected", logger.UserID(claims.UserID), logger.ToolID(claims.ToolID))
		return nil, ErrInvalidState
	}

	contract, err := b.registry.Resolve(claims.ToolID)
	if err != nil {
		return nil, err
	}
	creds, ok := b.registry.Credentials(contract.ProviderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolUnavailable, claims.ToolID)
	}

	tr, err := b.exchange.ExchangeCode(ctx, contract, creds, code, b.redirectURI(contract))
	if err != nil {
		log.Error("code exchange failed",
			logger.ToolID(claims.ToolID), logger.Provider(contract.ProviderID), logger.Err(err))
		return nil, err
	}

	conn, err := b.persist(ctx, claims.UserID, claims.ToolID, contract, tr, nil)
	if err != nil {
		return nil, err
	}

	metrics.ConnectionsEstablished.WithLabelValues(claims.ToolID).Inc()
	log.Info("connection established",
		logger.UserID(claims.UserID), logger.ToolID(claims.ToolID), logger.Provider(contract.ProviderID))
	return &ConnectionSummary{
		ToolID:      conn.ToolID,
		ConnectedAt: conn.UpdatedAt,
		Scopes:      conn.Scopes,
	}, nil
}

// GetValidToken returns a usable access token for (user, tool), refreshing
// transparently when the stored token is within the skew margin of expiry.
func (b *Broker) GetValidToken(ctx context.Context, userID, toolID string) (string, error) {
	conn, err := b.store.Get(ctx, userID, toolID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotConnected
		}
		return "", err
	}

	if b.fresh(conn) {
		token, err := b.box.Decrypt(conn.EncryptedAccessToken)
		if err != nil {
			// Key rotation or corruption: the row is unreadable, not the
			// request's fault. Drop it and ask for a reconnect.
			return "", b.invalidate(ctx, userID, toolID, err)
		}
		return token, nil
	}

	v, err, _ := b.refreshGroup.Do(userID+"\x00"+toolID, func() (any, error) {
		return b.refreshLocked(ctx, userID, toolID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refreshLocked runs inside the singleflight for (user, tool). It re-reads
// the row first: a concurrent flight may have refreshed it already.
func (b *Broker) refreshLocked(ctx context.Context, userID, toolID string) (string, error) {
	log := logger.From(ctx).With(logger.Component("broker"))

	conn, err := b.store.Get(ctx, userID, toolID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotConnected
		}
		return "", err
	}
	if b.fresh(conn) {
		token, err := b.box.Decrypt(conn.EncryptedAccessToken)
		if err != nil {
			return "", b.invalidate(ctx, userID, toolID, err)
		}
		return token, nil
	}

	if conn.EncryptedRefreshToken == "" {
		// Expired and nothing to refresh with.
		return "", b.invalidate(ctx, userID, toolID, errors.New("no refresh token"))
	}
	refreshToken, err := b.box.Decrypt(conn.EncryptedRefreshToken)
	if err != nil {
		return "", b.invalidate(ctx, userID, toolID, err)
	}

	contract, err := b.registry.Resolve(toolID)
	if err != nil {
		return "", err
	}
	creds, ok := b.registry.Credentials(contract.ProviderID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolUnavailable, toolID)
	}

	tr, err := b.exchange.Refresh(ctx, contract, creds, refreshToken)
	if err != nil {
		if errors.Is(err, oauth.ErrRefreshRejected) {
			metrics.TokenRefreshes.WithLabelValues(toolID, "rejected").Inc()
			return "", b.invalidate(ctx, userID, toolID, err)
		}
		// Transient provider trouble: keep the row, let the caller retry.
		metrics.TokenRefreshes.WithLabelValues(toolID, "error").Inc()
		log.Warn("refresh failed",
			logger.UserID(userID), logger.ToolID(toolID), logger.Err(err))
		return "", err
	}

	if _, err := b.persist(ctx, userID, toolID, contract, tr, conn); err != nil {
		return "", err
	}

	metrics.TokenRefreshes.WithLabelValues(toolID, "ok").Inc()
	log.Info("token refreshed",
		logger.UserID(userID), logger.ToolID(toolID), logger.Provider(contract.ProviderID))
	return tr.AccessToken, nil
}

// Disconnect deletes the connection. Idempotent: disconnecting a tool that
// is not connected is a success.
func (b *Broker) Disconnect(ctx context.Context, userID, toolID string) error {
	if _, err := b.registry.Resolve(toolID); err != nil {
		return err
	}
	if err := b.store.Delete(ctx, userID, toolID); err != nil {
		return err
	}
	logger.From(ctx).With(logger.Component("broker")).Info("disconnected",
		logger.UserID(userID), logger.ToolID(toolID))
	return nil
}

// Status maps every registered tool to its connection state for the user.
func (b *Broker) Status(ctx context.Context, userID string) (map[string]ToolStatus, error) {
	out := make(map[string]ToolStatus, len(b.registry.Tools()))
	for _, tool := range b.registry.Tools() {
		out[tool] = ToolStatus{Connected: false}
	}

	conns, err := b.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, conn := range conns {
		// Same surface as the callback summary: a reconnect moves this.
		connectedAt := conn.UpdatedAt
		meta := make(map[string]string, len(conn.Metadata))
		for k, v := range conn.Metadata {
			meta[k] = v
		}
		out[conn.ToolID] = ToolStatus{
			Connected:   true,
			ConnectedAt: &connectedAt,
			Metadata:    meta,
		}
	}
	return out, nil
}

// persist encrypts the token result and upserts the row. prev, when present,
// carries metadata forward across a refresh that returned none.
func (b *Broker) persist(ctx context.Context, userID, toolID string, contract provider.Contract, tr *provider.TokenResult, prev *store.Connection) (*store.Connection, error) {
	encAccess, err := b.box.Encrypt(tr.AccessToken)
	if err != nil {
		return nil, err
	}
	var encRefresh string
	if tr.RefreshToken != "" {
		if encRefresh, err = b.box.Encrypt(tr.RefreshToken); err != nil {
			return nil, err
		}
	}

	var expiresAt *time.Time
	if tr.ExpiresIn > 0 {
		t := b.now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	scopes := tr.Scopes
	if len(scopes) == 0 {
		if prev != nil && len(prev.Scopes) > 0 {
			scopes = prev.Scopes
		} else {
			scopes = contract.Scopes
		}
	}

	metadata := map[string]string{}
	if prev != nil {
		for k, v := range prev.Metadata {
			metadata[k] = v
		}
	}
	for k, v := range tr.Metadata {
		metadata[k] = v
	}

	return b.store.Upsert(ctx, store.UpsertInput{
		UserID:                userID,
		ToolID:                toolID,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		ExpiresAt:             expiresAt,
		Scopes:                scopes,
		Metadata:              metadata,
	})
}

// fresh reports whether the stored access token is still usable: no expiry
// recorded, or expiry beyond the skew margin.
func (b *Broker) fresh(conn *store.Connection) bool {
	if conn.ExpiresAt == nil {
		return true
	}
	return conn.ExpiresAt.After(b.now().Add(b.skew))
}

// invalidate drops a row whose credential cannot be trusted and returns
// ErrReauthorizationRequired. The cause stays in server logs only.
func (b *Broker) invalidate(ctx context.Context, userID, toolID string, cause error) error {
	metrics.ConnectionsDropped.WithLabelValues(toolID, dropCause(cause)).Inc()
	logger.From(ctx).With(logger.Component("broker")).Warn("stale connection dropped",
		logger.UserID(userID), logger.ToolID(toolID), logger.Err(cause))
	if err := b.store.Delete(ctx, userID, toolID); err != nil {
		logger.From(ctx).Error("failed to delete stale connection",
			logger.UserID(userID), logger.ToolID(toolID), logger.Err(err))
	}
	return ErrReauthorizationRequired
}

func dropCause(err error) string {
	switch {
	case errors.Is(err, oauth.ErrRefreshRejected):
		return "refresh_rejected"
	case errors.Is(err, secretbox.ErrDecryptFailed):
		return "decrypt_failed"
	default:
		return "no_refresh_token"
	}
}

func (b *Broker) redirectURI(contract provider.Contract) string {
	return b.baseURL + contract.RedirectPath
}
