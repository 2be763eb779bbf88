// Package statetoken issues and verifies the signed state value that binds
// an OAuth redirect round trip to the request that initiated it.
//
// Tokens are HS256 JWTs carrying (user, tool, nonce, expiry). The codec is
// deliberately stateless: it cannot tell a replayed token from a fresh one
// within the TTL. Single-use is the broker's job, which records nonce
// consumption and makes the Connection upsert idempotent, bounding what a
// replay can achieve to "reconnect".
package statetoken

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// Audience distinguishes state tokens from any other JWT signed in-house.
const Audience = "integration-state"

// DefaultTTL bounds the redirect round trip: long enough to log in at the
// provider, short enough to bound replay.
const DefaultTTL = 5 * time.Minute

// ErrInvalid covers every verification failure: bad signature, expiry,
// structural corruption, missing claims. Callers surface it uniformly as
// "please retry connecting".
var ErrInvalid = errors.New("invalid state token")

// Claims is the payload bound to a redirect round trip.
type Claims struct {
	UserID string `json:"uid"`
	ToolID string `json:"tool"`
	Nonce  string `json:"nonce"`
	jwtv5.RegisteredClaims
}

// Codec signs and verifies state tokens with a server-held key.
type Codec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// New builds a Codec. ttl <= 0 falls back to DefaultTTL.
func New(key []byte, ttl time.Duration, opts ...Option) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Codec{key: key, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeriveKey derives the state-signing key from the master key via HKDF, so
// the one configured secret serves both purposes without key reuse.
func DeriveKey(master []byte) []byte {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, master, nil, []byte("toolbridge/state-token/v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		panic(fmt.Sprintf("statetoken: hkdf: %v", err))
	}
	return key
}

// Issue creates a signed state value for (userID, toolID) with a fresh
// random nonce, returning the opaque string and its expiry.
func (c *Codec) Issue(userID, toolID string) (string, time.Time, error) {
	if userID == "" || toolID == "" {
		return "", time.Time{}, errors.New("statetoken: user and tool required")
	}

	nb := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, nb); err != nil {
		return "", time.Time{}, fmt.Errorf("statetoken: nonce: %w", err)
	}

	now := c.now().UTC()
	exp := now.Add(c.ttl)
	claims := Claims{
		UserID: userID,
		ToolID: toolID,
		Nonce:  base64.RawURLEncoding.EncodeToString(nb),
		RegisteredClaims: jwtv5.RegisteredClaims{
			Audience:  jwtv5.ClaimStrings{Audience},
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("statetoken: sign: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature and validity window and returns the claims.
// Any failure maps to ErrInvalid; the HMAC comparison inside the JWT library
// is constant time.
func (c *Codec) Verify(state string) (*Claims, error) {
	claims := &Claims{}
	tk, err := jwtv5.ParseWithClaims(state, claims,
		func(*jwtv5.Token) (any, error) { return c.key, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithAudience(Audience),
		jwtv5.WithTimeFunc(c.now),
		jwtv5.WithExpirationRequired(),
		// Strict base64 keeps the encoding canonical, so mutating even the
		// trailing slack bits of a segment is rejected rather than ignored.
		jwtv5.WithStrictDecoding(),
	)
	if err != nil || !tk.Valid {
		return nil, ErrInvalid
	}
	if claims.UserID == "" || claims.ToolID == "" || claims.Nonce == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
