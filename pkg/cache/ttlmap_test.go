package cache

import (
	"testing"
	"time"
)

func TestTTLMapSetGet(t *testing.T) {
	m := NewTTLMap(0)
	m.Set("a", 1, 0)

	v, ok := m.Get("a")
	if !ok || v.(int) != 1 {
		t.Fatalf("Get(a) = %v, %v; want 1, true", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatal("Get(missing) reported a hit")
	}
}

func TestTTLMapExpiry(t *testing.T) {
	m := NewTTLMap(0)
	m.Set("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := m.Get("a"); ok {
		t.Fatal("expired entry still visible")
	}
	if got := m.Len(); got != 0 {
		t.Fatalf("Len() = %d after expiry, want 0", got)
	}
}

func TestTTLMapSetOnce(t *testing.T) {
	m := NewTTLMap(0)
	if !m.SetOnce("a", 1, time.Hour) {
		t.Fatal("first SetOnce rejected")
	}
	if m.SetOnce("a", 2, time.Hour) {
		t.Fatal("second SetOnce accepted for a live key")
	}
	if v, _ := m.Get("a"); v.(int) != 1 {
		t.Fatalf("value overwritten: got %v", v)
	}
}

func TestTTLMapSetOnceAfterExpiry(t *testing.T) {
	m := NewTTLMap(0)
	m.SetOnce("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if !m.SetOnce("a", 2, time.Hour) {
		t.Fatal("SetOnce rejected after the previous entry expired")
	}
}

func TestTTLMapCapacity(t *testing.T) {
	m := NewTTLMap(2)
	m.Set("soon", 1, time.Minute)
	m.Set("later", 2, time.Hour)
	m.Set("new", 3, time.Hour)

	if _, ok := m.Get("soon"); ok {
		t.Fatal("entry closest to expiry survived capacity eviction")
	}
	if _, ok := m.Get("later"); !ok {
		t.Fatal("longer-lived entry was evicted")
	}
	if _, ok := m.Get("new"); !ok {
		t.Fatal("newly written entry missing")
	}
}
