package cache

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute, 10)
	if _, ok := c.Get("missing"); ok {
		t.Errorf("Get on empty cache returned a value")
	}
	c.Set("file1", "https://api.telegram.org/file/abc")
	v, ok := c.Get("file1")
	if !ok || v != "https://api.telegram.org/file/abc" {
		t.Errorf("Get = %q/%v", v, ok)
	}
}

func TestExpiry(t *testing.T) {
	c := New(time.Minute, 10)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Set("k", "v")

	c.now = func() time.Time { return base.Add(61 * time.Second) }
	if _, ok := c.Get("k"); ok {
		t.Errorf("expired entry still served")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not deleted on read")
	}
}

func TestBoundedEviction(t *testing.T) {
	c := New(time.Minute, 2)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	c.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	// "a" was closest to expiry and must be the victim.
	if _, ok := c.Get("a"); ok {
		t.Errorf("oldest entry survived eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Errorf("newest entry evicted")
	}
}
