// Package pg implements the credential store on PostgreSQL via pgxpool.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillsync/toolbridge/internal/store"
	migrations "github.com/skillsync/toolbridge/migrations/postgres"
)

type Repo struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ store.Repository = (*Repo)(nil)

// EnsureSchema applies the embedded migrations. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS), so running at every startup is safe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := migrations.Files()
	if err != nil {
		return err
	}
	for _, f := range files {
		if _, err := pool.Exec(ctx, f.SQL); err != nil {
			return fmt.Errorf("apply migration %s: %w", f.Name, err)
		}
	}
	return nil
}

const upsertQuery = `
	INSERT INTO connection (
		id, user_id, tool_id,
		encrypted_access_token, encrypted_refresh_token,
		expires_at, scopes, metadata, created_at, updated_at
	)
	VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, now(), now())
	ON CONFLICT (user_id, tool_id) DO UPDATE SET
		encrypted_access_token  = EXCLUDED.encrypted_access_token,
		encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
		expires_at              = EXCLUDED.expires_at,
		scopes                  = EXCLUDED.scopes,
		metadata                = EXCLUDED.metadata,
		updated_at              = now()
	RETURNING id, user_id, tool_id,
		encrypted_access_token, encrypted_refresh_token,
		expires_at, scopes, metadata, created_at, updated_at
`

func (r *Repo) Upsert(ctx context.Context, in store.UpsertInput) (*store.Connection, error) {
	meta, err := json.Marshal(orEmpty(in.Metadata))
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	row := r.pool.QueryRow(ctx, upsertQuery,
		in.UserID, in.ToolID,
		in.EncryptedAccessToken, nullIfEmpty(in.EncryptedRefreshToken),
		in.ExpiresAt, in.Scopes, meta,
	)
	return scanConnection(row)
}

const getQuery = `
	SELECT id, user_id, tool_id,
		encrypted_access_token, encrypted_refresh_token,
		expires_at, scopes, metadata, created_at, updated_at
	FROM connection
	WHERE user_id = $1 AND tool_id = $2
`

func (r *Repo) Get(ctx context.Context, userID, toolID string) (*store.Connection, error) {
	conn, err := scanConnection(r.pool.QueryRow(ctx, getQuery, userID, toolID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return conn, err
}

func (r *Repo) Delete(ctx context.Context, userID, toolID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM connection WHERE user_id = $1 AND tool_id = $2`,
		userID, toolID,
	)
	return err
}

const listByUserQuery = `
	SELECT id, user_id, tool_id,
		encrypted_access_token, encrypted_refresh_token,
		expires_at, scopes, metadata, created_at, updated_at
	FROM connection
	WHERE user_id = $1
	ORDER BY tool_id
`

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]store.Connection, error) {
	rows, err := r.pool.Query(ctx, listByUserQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

const listAllQuery = `
	SELECT id, user_id, tool_id,
		encrypted_access_token, encrypted_refresh_token,
		expires_at, scopes, metadata, created_at, updated_at
	FROM connection
	ORDER BY user_id, tool_id
`

func (r *Repo) ListAll(ctx context.Context) ([]store.Connection, error) {
	rows, err := r.pool.Query(ctx, listAllQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*store.Connection, error) {
	var (
		conn    store.Connection
		refresh *string
		meta    []byte
	)
	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.ToolID,
		&conn.EncryptedAccessToken, &refresh,
		&conn.ExpiresAt, &conn.Scopes, &meta,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if refresh != nil {
		conn.EncryptedRefreshToken = *refresh
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &conn.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &conn, nil
}

func collect(rows pgx.Rows) ([]store.Connection, error) {
	var out []store.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conn)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
