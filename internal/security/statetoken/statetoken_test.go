package statetoken

import (
	"errors"
	"testing"
	"time"
)

var key = DeriveKey([]byte("0123456789abcdef0123456789abcdef"))

func TestIssueVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	c := New(key, 5*time.Minute)

	state, exp, err := c.Issue("u1", "github")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry not in the future: %v", exp)
	}

	claims, err := c.Verify(state)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if claims.UserID != "u1" || claims.ToolID != "github" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.Nonce == "" {
		t.Fatalf("missing nonce")
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	now := issuedAt
	c := New(key, ttl, WithClock(func() time.Time { return now }))

	state, _, err := c.Issue("u1", "slack")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}

	// Still valid just inside the window.
	now = issuedAt.Add(ttl - time.Second)
	if _, err := c.Verify(state); err != nil {
		t.Fatalf("expected valid before TTL, got %v", err)
	}

	// Rejected once TTL elapsed.
	now = issuedAt.Add(ttl + time.Second)
	if _, err := c.Verify(state); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid after TTL, got %v", err)
	}
}

func TestVerify_TamperedByte(t *testing.T) {
	t.Parallel()
	c := New(key, 5*time.Minute)

	state, _, err := c.Issue("u1", "jira")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}

	// Flip one character at every position; all mutations must be rejected.
	for i := 0; i < len(state); i++ {
		b := []byte(state)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		mutated := string(b)
		if mutated == state {
			continue
		}
		if _, err := c.Verify(mutated); !errors.Is(err, ErrInvalid) {
			t.Fatalf("mutation at %d accepted", i)
		}
	}
}

func TestVerify_WrongKey(t *testing.T) {
	t.Parallel()
	a := New(DeriveKey([]byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")), time.Minute)
	b := New(DeriveKey([]byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")), time.Minute)

	state, _, err := a.Issue("u1", "figma")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	if _, err := b.Verify(state); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	t.Parallel()
	c := New(key, time.Minute)
	for _, s := range []string{"", "not-a-jwt", "a.b", "a.b.c.d", "eyJh.eyJh."} {
		if _, err := c.Verify(s); !errors.Is(err, ErrInvalid) {
			t.Fatalf("input %q: expected ErrInvalid, got %v", s, err)
		}
	}
}

func TestIssue_RequiresUserAndTool(t *testing.T) {
	t.Parallel()
	c := New(key, time.Minute)
	if _, _, err := c.Issue("", "github"); err == nil {
		t.Fatalf("expected error for empty user")
	}
	if _, _, err := c.Issue("u1", ""); err == nil {
		t.Fatalf("expected error for empty tool")
	}
}
