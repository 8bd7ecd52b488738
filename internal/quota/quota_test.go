package quota

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAllowWithinLimit(t *testing.T) {
	q := New(zap.NewNop(), 3)
	base := time.Unix(5000, 0)
	q.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		ok, _ := q.Allow(42)
		if !ok {
			t.Fatalf("Allow() call %d = false, want true", i)
		}
	}

	ok, retryAfter := q.Allow(42)
	if ok {
		t.Fatal("Allow() 4th call = true, want false")
	}
	if retryAfter <= 0 {
		t.Fatalf("retryAfter = %v, want > 0", retryAfter)
	}
}

func TestAllowSeparatePerUser(t *testing.T) {
	q := New(zap.NewNop(), 1)
	base := time.Unix(6000, 0)
	q.now = func() time.Time { return base }

	ok, _ := q.Allow(1)
	if !ok {
		t.Fatal("Allow(1) = false, want true")
	}
	ok, _ = q.Allow(2)
	if !ok {
		t.Fatal("Allow(2) = false, want true")
	}
	ok, _ = q.Allow(1)
	if ok {
		t.Fatal("second Allow(1) = true, want false")
	}
}

func TestAllowWindowExpires(t *testing.T) {
	q := New(zap.NewNop(), 1)
	base := time.Unix(7000, 0)
	now := base
	q.now = func() time.Time { return now }

	q.Allow(9)
	ok, _ := q.Allow(9)
	if ok {
		t.Fatal("Allow() before window expiry = true, want false")
	}

	now = base.Add(time.Hour + time.Second)
	ok, _ = q.Allow(9)
	if !ok {
		t.Fatal("Allow() after window expiry = false, want true")
	}
}
