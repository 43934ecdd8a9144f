package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompletionCache(t *testing.T) {
	cache := newCompletionCache(50 * time.Millisecond)
	defer cache.Close()

	key := cacheKey("prompt", CompletionOptions{Temperature: 0.3})
	_, ok := cache.get(key)
	assert.False(t, ok)

	cache.set(key, "answer")
	got, ok := cache.get(key)
	assert.True(t, ok)
	assert.Equal(t, "answer", got)

	time.Sleep(60 * time.Millisecond)
	_, ok = cache.get(key)
	assert.False(t, ok, "entry should expire")
}

func TestCacheKey_DependsOnOptions(t *testing.T) {
	a := cacheKey("p", CompletionOptions{Temperature: 0.3})
	b := cacheKey("p", CompletionOptions{Temperature: 0.7})
	c := cacheKey("p", CompletionOptions{Temperature: 0.3, MaxTokens: 10})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, cacheKey("p", CompletionOptions{Temperature: 0.3}))
}

func TestCompletionCache_CloseTwice(t *testing.T) {
	cache := newCompletionCache(time.Minute)
	cache.Close()
	assert.NotPanics(t, cache.Close)
}
