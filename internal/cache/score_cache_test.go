package cache

import (
	"testing"
	"time"
)

func TestGetReturnsValueWithinTTL(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	c := NewScoreCache(5 * time.Minute)
	c.now = func() time.Time { return clock }

	c.Put(KindPrice, "0xabc", 42.5)

	clock = base.Add(4 * time.Minute)
	v, ok := c.Get(KindPrice, "0xabc")
	if !ok {
		t.Fatalf("expected hit within TTL")
	}
	if v.(float64) != 42.5 {
		t.Fatalf("unexpected value: %v", v)
	}
}

func TestGetExpiresLazilyAtTTL(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	c := NewScoreCache(5 * time.Minute)
	c.now = func() time.Time { return clock }

	c.Put(KindReputation, "0xabc", "flagged")
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}

	clock = base.Add(5 * time.Minute)
	if _, ok := c.Get(KindReputation, "0xabc"); ok {
		t.Fatalf("expected miss at exactly TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("expected stale entry to be evicted on read, got %d entries", c.Len())
	}
}

func TestKindsDoNotCollide(t *testing.T) {
	c := NewScoreCache(time.Minute)
	c.Put(KindPrice, "0xabc", 1.0)
	c.Put(KindHistory, "0xabc", "history")

	v, ok := c.Get(KindPrice, "0xabc")
	if !ok || v.(float64) != 1.0 {
		t.Fatalf("price entry clobbered: %v %v", v, ok)
	}
	v, ok = c.Get(KindHistory, "0xabc")
	if !ok || v.(string) != "history" {
		t.Fatalf("history entry clobbered: %v %v", v, ok)
	}
}

func TestPutRefreshesExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	c := NewScoreCache(5 * time.Minute)
	c.now = func() time.Time { return clock }

	c.Put(KindPrice, "0xabc", 1.0)
	clock = base.Add(4 * time.Minute)
	c.Put(KindPrice, "0xabc", 2.0)

	clock = base.Add(8 * time.Minute)
	v, ok := c.Get(KindPrice, "0xabc")
	if !ok {
		t.Fatalf("expected refreshed entry to survive")
	}
	if v.(float64) != 2.0 {
		t.Fatalf("expected refreshed value 2.0, got %v", v)
	}
}

func TestSnapshotCountsHitsMissesExpired(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	c := NewScoreCache(time.Minute)
	c.now = func() time.Time { return clock }

	c.Get(KindPrice, "missing")
	c.Put(KindPrice, "0xabc", 1.0)
	c.Get(KindPrice, "0xabc")
	clock = base.Add(2 * time.Minute)
	c.Get(KindPrice, "0xabc")

	stats := c.Snapshot()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Expired != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Entries != 0 {
		t.Fatalf("expected 0 resident entries, got %d", stats.Entries)
	}
}
