package linkedin

import (
	"testing"
	"time"
)

func TestCachePutGet(t *testing.T) {
	c := NewResponseCache()
	c.Put("k1", []byte("data"), "h1", 5, 10)

	data, hash, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != "data" || hash != "h1" {
		t.Fatalf("unexpected entry: %q %q", data, hash)
	}

	if _, _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewResponseCache()
	c.Put("k1", []byte("data"), "h1", 5, 10)

	// Force the entry into the past.
	c.mu.Lock()
	e := c.entries["k1"]
	e.expiresAt = time.Now().Add(-time.Second)
	c.entries["k1"] = e
	c.mu.Unlock()

	if _, _, ok := c.Get("k1"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestCachePriorHashSurvivesExpiry(t *testing.T) {
	c := NewResponseCache()
	c.Put("k1", []byte("data"), "m1-2026-08-20", 5, 10)

	c.mu.Lock()
	e := c.entries["k1"]
	e.expiresAt = time.Now().Add(-time.Second)
	c.entries["k1"] = e
	c.mu.Unlock()

	// PriorHash reads without evicting, so new-message detection works
	// across TTL boundaries.
	if got := c.PriorHash("k1"); got != "m1-2026-08-20" {
		t.Fatalf("PriorHash = %q, want m1-2026-08-20", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewResponseCache()
	c.Put("k1", []byte("data"), "h1", 5, 10)
	c.Invalidate("k1")
	if _, _, ok := c.Get("k1"); ok {
		t.Fatal("expected invalidated entry to miss")
	}
}

func TestRandomTTLBounds(t *testing.T) {
	c := NewResponseCache()
	for i := 0; i < 200; i++ {
		ttl := c.randomTTL(chatsTTLMinMinutes, chatsTTLMaxMinutes)
		if ttl < 30*time.Minute || ttl > 61*time.Minute {
			t.Fatalf("chats TTL out of band: %s", ttl)
		}
	}
	for i := 0; i < 200; i++ {
		ttl := c.randomTTL(messagesTTLMinMinutes, messagesTTLMaxMinutes)
		if ttl < 5*time.Minute || ttl > 11*time.Minute {
			t.Fatalf("messages TTL out of band: %s", ttl)
		}
	}
}

func TestMessagesHash(t *testing.T) {
	msgs := []Message{
		{ID: "m2", Timestamp: "2026-08-20T11:00:00.000Z"},
		{ID: "m1", Timestamp: "2026-08-20T10:00:00.000Z"},
	}
	if got := messagesHash(msgs); got != "m2-2026-08-20T11:00:00.000Z" {
		t.Fatalf("messagesHash = %q", got)
	}
	if got := messagesHash(nil); got != "empty" {
		t.Fatalf("messagesHash(nil) = %q", got)
	}
}

func TestCacheStats(t *testing.T) {
	c := NewResponseCache()
	c.Put("k1", []byte("x"), "", 5, 10)
	c.Get("k1")
	c.Get("k2")

	hits, misses, size := c.Stats()
	if hits != 1 || misses != 1 || size != 1 {
		t.Fatalf("stats = %d hits, %d misses, %d entries", hits, misses, size)
	}
}
