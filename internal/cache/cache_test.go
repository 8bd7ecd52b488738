package cache

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func open(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path, ttl, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetGetRoundTrip(t *testing.T) {
	c := open(t, time.Hour)
	base := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return base }

	if err := c.Set("2222058686", "FIO;phone;email"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, createdAt, ok, err := c.Get("2222058686")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if v != "FIO;phone;email" {
		t.Fatalf("Get() value = %q", v)
	}
	if !createdAt.Equal(base) {
		t.Fatalf("Get() createdAt = %v, want %v", createdAt, base)
	}
}

func TestGetMissingKey(t *testing.T) {
	c := open(t, time.Hour)
	_, _, ok, err := c.Get("missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("Get() ok = true, want false")
	}
}

func TestGetExpiredEntryIsDeleted(t *testing.T) {
	c := open(t, time.Minute)
	base := time.Unix(1_700_000_000, 0)
	now := base
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = base.Add(2 * time.Minute)

	_, _, ok, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("Get() ok = true after expiry, want false")
	}

	// Entry should now be gone even if we rewind time.
	now = base
	_, _, ok, err = c.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("expired entry was not deleted")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := open(t, 0)
	base := time.Unix(1_700_000_000, 0)
	now := base
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = base.Add(365 * 24 * time.Hour)

	_, _, ok, err := c.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false with ttl=0, want true")
	}
}

func TestPurgeExpired(t *testing.T) {
	c := open(t, time.Minute)
	base := time.Unix(1_700_000_000, 0)
	now := base
	c.now = func() time.Time { return now }

	c.Set("stale", "v1")
	now = base.Add(90 * time.Second)
	c.Set("fresh", "v2")
	now = base.Add(2 * time.Minute)

	n, err := c.PurgeExpired()
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("PurgeExpired() count = %d, want 1", n)
	}

	_, _, ok, _ := c.Get("fresh")
	if !ok {
		t.Fatal("fresh entry was purged")
	}
}

func TestPurgeExpiredNoopWhenTTLZero(t *testing.T) {
	c := open(t, 0)
	c.Set("k", "v")
	n, err := c.PurgeExpired()
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("PurgeExpired() count = %d, want 0", n)
	}
}
