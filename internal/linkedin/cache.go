package linkedin

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// TTL bands per resource class, in minutes. Each entry additionally gets a
// random 0-59s of jitter so expiry instants never line up across resources.
// Deterministic TTLs would fingerprint the client's polling behavior.
const (
	chatsTTLMinMinutes    = 30
	chatsTTLMaxMinutes    = 60
	profileTTLMinMinutes  = 24 * 60
	profileTTLMaxMinutes  = 30 * 60
	messagesTTLMinMinutes = 5
	messagesTTLMaxMinutes = 10
)

type cacheEntry struct {
	data      []byte
	hash      string
	expiresAt time.Time
}

// ResponseCache is a process-wide cache of provider responses with
// randomized TTLs and new-message detection via content hash.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	rng     *rand.Rand

	hits   int64
	misses int64
}

// NewResponseCache creates an empty response cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{
		entries: make(map[string]cacheEntry),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Get returns the cached body for key, or ok=false when absent or expired.
func (c *ResponseCache) Get(key string) (data []byte, hash string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || time.Now().After(e.expiresAt) {
		if found {
			delete(c.entries, key)
		}
		c.misses++
		return nil, "", false
	}
	c.hits++
	return e.data, e.hash, true
}

// PriorHash returns the stored content hash for key even when the entry has
// expired. Used to detect new messages across refreshes.
func (c *ResponseCache) PriorHash(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key].hash
}

// Put stores a body under key with a TTL drawn uniformly from the band for
// its resource class, plus second-level jitter.
func (c *ResponseCache) Put(key string, data []byte, hash string, minMinutes, maxMinutes int) {
	ttl := c.randomTTL(minMinutes, maxMinutes)
	c.mu.Lock()
	c.entries[key] = cacheEntry{data: data, hash: hash, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Invalidate drops the entry for key, if any. The content hash is dropped
// with it, so the next fetch reports no new messages.
func (c *ResponseCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Stats returns hit/miss counters and the current entry count.
func (c *ResponseCache) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.entries)
}

func (c *ResponseCache) randomTTL(minMinutes, maxMinutes int) time.Duration {
	c.mu.Lock()
	minutes := minMinutes
	if maxMinutes > minMinutes {
		minutes += c.rng.Intn(maxMinutes - minMinutes + 1)
	}
	jitterSec := c.rng.Intn(60)
	c.mu.Unlock()
	return time.Duration(minutes)*time.Minute + time.Duration(jitterSec)*time.Second
}

// Cache keys per resource class.
func chatsKey(accountID string) string            { return fmt.Sprintf("chats:%s", accountID) }
func profileKey(handle string) string             { return fmt.Sprintf("profile:%s", handle) }
func messagesKey(chatID string, limit int) string { return fmt.Sprintf("messages:%s:%d", chatID, limit) }
