package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache(t *testing.T) {
	c := NewCache[string, int](time.Minute)

	_, ok := c.Get("key")
	assert.False(t, ok)

	c.Set("key", 42)

	value, ok := c.Get("key")
	assert.True(t, ok)
	assert.Equal(t, 42, value)

	c.Delete("key")

	_, ok = c.Get("key")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache[string, int](10 * time.Millisecond)

	c.Set("key", 42)

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestCacheClear(t *testing.T) {
	c := NewCache[string, int](time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()

	_, ok := c.Get("a")
	assert.False(t, ok)

	_, ok = c.Get("b")
	assert.False(t, ok)
}
