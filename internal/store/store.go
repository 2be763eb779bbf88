// Package store defines the persistence boundary for encrypted credential
// rows. The broker only ever sees this interface; adapters live in
// sub-packages (pg for production, memory for dev and tests).
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no connection exists for (user, tool).
var ErrNotFound = errors.New("connection not found")

// Connection is the persisted record of a completed link between a user and
// a tool. Token fields hold ciphertext only; plaintext never reaches a row.
type Connection struct {
	ID                    string
	UserID                string
	ToolID                string
	EncryptedAccessToken  string
	EncryptedRefreshToken string     // empty when the provider issued none
	ExpiresAt             *time.Time // nil for non-expiring tokens
	Scopes                []string
	Metadata              map[string]string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// UpsertInput is everything needed to establish or supersede a connection.
type UpsertInput struct {
	UserID                string
	ToolID                string
	EncryptedAccessToken  string
	EncryptedRefreshToken string
	ExpiresAt             *time.Time
	Scopes                []string
	Metadata              map[string]string
}

// Repository is the credential store contract. All operations are keyed by
// the unique (UserID, ToolID) pair; Upsert must be atomic per row so that
// concurrent callers converge on last-writer-wins with no half-written state.
type Repository interface {
	Upsert(ctx context.Context, in UpsertInput) (*Connection, error)
	Get(ctx context.Context, userID, toolID string) (*Connection, error)
	Delete(ctx context.Context, userID, toolID string) error
	ListByUser(ctx context.Context, userID string) ([]Connection, error)

	// ListAll feeds the administrative sweep. It returns rows without
	// touching token ciphertext semantics: callers must never decrypt here.
	ListAll(ctx context.Context) ([]Connection, error)
}
