package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// cacheEntry represents a cached completion.
type cacheEntry struct {
	expiry time.Time
	text   string
}

// completionCache provides thread-safe caching of completions by prompt.
type completionCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
	once    sync.Once
}

// newCompletionCache creates a new cache with the specified TTL.
func newCompletionCache(ttl time.Duration) *completionCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &completionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

func cacheKey(prompt string, opts CompletionOptions) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%.3f\x00%d\x00%s", opts.System, opts.Temperature, opts.MaxTokens, prompt)))
	return hex.EncodeToString(sum[:])
}

// get retrieves a completion if it exists and hasn't expired.
func (c *completionCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		return "", false
	}

	return entry.text, true
}

// set stores a completion in the cache.
func (c *completionCache) set(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		text:   text,
		expiry: time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *completionCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (c *completionCache) Close() {
	c.once.Do(func() { close(c.stopCh) })
}
