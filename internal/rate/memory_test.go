package rate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	l := NewMemoryLimiter(3, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "k")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d should be allowed", i+1)
		}
	}

	res, err := l.Allow(ctx, "k")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Allowed {
		t.Fatalf("fourth hit should be rejected")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want > 0", res.RetryAfter)
	}

	// A different key has its own budget.
	res, _ = l.Allow(ctx, "other")
	if !res.Allowed {
		t.Fatalf("unrelated key should be allowed")
	}

	// Next window resets the count.
	now = base.Add(time.Minute)
	res, _ = l.Allow(ctx, "k")
	if !res.Allowed {
		t.Fatalf("new window should be allowed")
	}
	if res.CurrentHits != 1 {
		t.Fatalf("CurrentHits = %d, want 1", res.CurrentHits)
	}
}

func TestSanitizeKey(t *testing.T) {
	t.Parallel()
	got := sanitizeKey("u:some user\r\nid")
	if got != "u:some_user__id" {
		t.Fatalf("sanitizeKey = %q", got)
	}
}
