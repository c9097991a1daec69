package cache

import (
	"testing"
	"time"
)

func TestTTLMapFreshAndExpired(t *testing.T) {
	m := NewTTLMap[string, int]()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	m.Set("a", 1, now, time.Minute)
	if v, ok := m.Get("a", now); !ok || v != 1 {
		t.Fatalf("expected fresh entry, got %d ok=%v", v, ok)
	}
	if v, ok := m.Get("a", now.Add(59*time.Second)); !ok || v != 1 {
		t.Fatalf("expected entry still fresh, got %d ok=%v", v, ok)
	}
	if _, ok := m.Get("a", now.Add(time.Minute)); ok {
		t.Fatal("expected entry expired at ttl boundary")
	}
	if m.Len() != 0 {
		t.Fatalf("expected expired entry evicted, len %d", m.Len())
	}
}

func TestTTLMapZeroTTLNeverExpires(t *testing.T) {
	m := NewTTLMap[string, string]()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	m.Set("k", "v", now, 0)
	if v, ok := m.Get("k", now.Add(1000*time.Hour)); !ok || v != "v" {
		t.Fatalf("expected permanent entry, got %q ok=%v", v, ok)
	}
}

func TestTTLMapDelete(t *testing.T) {
	m := NewTTLMap[int, int]()
	now := time.Now()
	m.Set(1, 10, now, time.Minute)
	m.Set(2, 20, now, time.Minute)
	m.Delete(1)
	if _, ok := m.Get(1, now); ok {
		t.Fatal("expected deleted entry gone")
	}
	if v, ok := m.Get(2, now); !ok || v != 20 {
		t.Fatalf("expected other entry untouched, got %d ok=%v", v, ok)
	}
	if m.Len() != 1 {
		t.Fatalf("expected len 1, got %d", m.Len())
	}
}
