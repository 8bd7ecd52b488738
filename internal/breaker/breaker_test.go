package breaker

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBreakerClosedByDefault(t *testing.T) {
	b := New(zap.NewNop())
	if got := b.Remaining(); got != 0 {
		t.Fatalf("Remaining() = %v, want 0", got)
	}
}

func TestOpenForExtendsNeverShortens(t *testing.T) {
	b := New(zap.NewNop())
	base := time.Unix(1000, 0)
	b.now = func() time.Time { return base }

	b.OpenFor(10 * time.Second)
	if got := b.Remaining(); got != 10*time.Second {
		t.Fatalf("Remaining() = %v, want 10s", got)
	}

	// A shorter opening must not shrink the existing cooldown.
	b.OpenFor(2 * time.Second)
	if got := b.Remaining(); got != 10*time.Second {
		t.Fatalf("Remaining() after shorter OpenFor = %v, want 10s", got)
	}

	// A longer opening extends it.
	b.OpenFor(20 * time.Second)
	if got := b.Remaining(); got != 20*time.Second {
		t.Fatalf("Remaining() after longer OpenFor = %v, want 20s", got)
	}
}

func TestRemainingDecaysToZero(t *testing.T) {
	b := New(zap.NewNop())
	base := time.Unix(2000, 0)
	now := base
	b.now = func() time.Time { return now }

	b.OpenFor(5 * time.Second)
	now = base.Add(6 * time.Second)

	if got := b.Remaining(); got != 0 {
		t.Fatalf("Remaining() after cooldown elapsed = %v, want 0", got)
	}
}

func TestOpenForIgnoresNonPositive(t *testing.T) {
	b := New(zap.NewNop())
	b.OpenFor(0)
	b.OpenFor(-time.Second)
	if got := b.Remaining(); got != 0 {
		t.Fatalf("Remaining() = %v, want 0", got)
	}
}
