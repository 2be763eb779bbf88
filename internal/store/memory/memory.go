// Package memory is the in-process Repository used in dev and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillsync/toolbridge/internal/store"
)

type Repo struct {
	mu   sync.RWMutex
	rows map[string]store.Connection // key: userID + "\x00" + toolID
}

func New() *Repo {
	return &Repo{rows: make(map[string]store.Connection)}
}

var _ store.Repository = (*Repo)(nil)

func key(userID, toolID string) string { return userID + "\x00" + toolID }

func (r *Repo) Upsert(_ context.Context, in store.UpsertInput) (*store.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	k := key(in.UserID, in.ToolID)

	conn, exists := r.rows[k]
	if !exists {
		conn = store.Connection{
			ID:        uuid.NewString(),
			UserID:    in.UserID,
			ToolID:    in.ToolID,
			CreatedAt: now,
		}
	}
	conn.EncryptedAccessToken = in.EncryptedAccessToken
	conn.EncryptedRefreshToken = in.EncryptedRefreshToken
	conn.ExpiresAt = copyTime(in.ExpiresAt)
	conn.Scopes = append([]string(nil), in.Scopes...)
	conn.Metadata = copyMeta(in.Metadata)
	conn.UpdatedAt = now

	r.rows[k] = conn
	out := conn
	return &out, nil
}

func (r *Repo) Get(_ context.Context, userID, toolID string) (*store.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.rows[key(userID, toolID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := conn
	out.ExpiresAt = copyTime(conn.ExpiresAt)
	out.Metadata = copyMeta(conn.Metadata)
	out.Scopes = append([]string(nil), conn.Scopes...)
	return &out, nil
}

func (r *Repo) Delete(_ context.Context, userID, toolID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, key(userID, toolID))
	return nil
}

func (r *Repo) ListByUser(_ context.Context, userID string) ([]store.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []store.Connection
	for _, conn := range r.rows {
		if conn.UserID == userID {
			out = append(out, conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out, nil
}

func (r *Repo) ListAll(_ context.Context) ([]store.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]store.Connection, 0, len(r.rows))
	for _, conn := range r.rows {
		out = append(out, conn)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ToolID < out[j].ToolID
	})
	return out, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
