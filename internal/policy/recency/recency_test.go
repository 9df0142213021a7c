package recency

import (
	"testing"

	"github.com/haukened/policycore/internal/policy/domain"
)

func TestCache_HitMissAndPut(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	d := domain.Decision{Outcome: domain.Terminate, MatchedSuffix: "example.com"}

	if _, ok := c.Get("example.com"); ok {
		t.Fatalf("expected miss before put")
	}

	c.Put("example.com", d)

	got, ok := c.Get("example.com")
	if !ok || got.Outcome != domain.Terminate || got.MatchedSuffix != "example.com" {
		t.Fatalf("unexpected get: ok=%v got=%+v", ok, got)
	}
}

func TestCache_EvictionAndLen(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Put("a", domain.Decision{Outcome: domain.Terminate})
	c.Put("b", domain.Decision{Outcome: domain.Terminate})
	if got := c.Len(); got != 2 {
		t.Fatalf("len=%d want=2", got)
	}
	c.Put("c", domain.Decision{Outcome: domain.Terminate})
	if got := c.Len(); got != 2 {
		t.Fatalf("len=%d want=2 after eviction", got)
	}
	_, _, evictions := c.Stats()
	if evictions != 1 {
		t.Fatalf("evictions=%d want=1", evictions)
	}
}

func TestCache_PurgeCountsEvictions(t *testing.T) {
	c, err := New(3)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Put("a", domain.Decision{Outcome: domain.Terminate})
	c.Put("b", domain.Decision{Outcome: domain.Terminate})
	c.Put("c", domain.Decision{Outcome: domain.Terminate})

	c.Purge()
	if got := c.Len(); got != 0 {
		t.Fatalf("len=%d want=0 after purge", got)
	}
	_, _, evictions := c.Stats()
	if evictions != 3 {
		t.Fatalf("evictions=%d want=3 after purge", evictions)
	}
}

func TestCache_HitMissStats(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Get("missing")
	c.Put("present", domain.Decision{Outcome: domain.ForwardAllow})
	c.Get("present")

	hits, misses, _ := c.Stats()
	if hits != 1 {
		t.Fatalf("hits=%d want=1", hits)
	}
	if misses != 1 {
		t.Fatalf("misses=%d want=1", misses)
	}
}

func TestCache_Disabled(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, ok := c.Get("x"); ok {
		t.Fatalf("expected miss in disabled cache")
	}
	c.Put("x", domain.Decision{Outcome: domain.Terminate})
	if got := c.Len(); got != 0 {
		t.Fatalf("len=%d want=0 for disabled", got)
	}
	hits, misses, evictions := c.Stats()
	if hits != 0 || misses != 0 || evictions != 0 {
		t.Fatalf("disabled cache should report zero stats, got hits=%d misses=%d evictions=%d", hits, misses, evictions)
	}
}
