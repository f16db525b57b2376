package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetAndGet(t *testing.T) {
	c := New()

	c.Set("faqs", []string{"How do I reset my password?"}, time.Minute)

	value, ok := c.Get("faqs")
	require.True(t, ok)
	assert.Equal(t, []string{"How do I reset my password?"}, value)
}

func TestCacheMissingKey(t *testing.T) {
	c := New()

	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := New()

	c.Set("short", "value", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
}

func TestCacheOverwrite(t *testing.T) {
	c := New()

	c.Set("key", "first", time.Minute)
	c.Set("key", "second", time.Minute)

	value, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "second", value)
}

func TestCacheDelete(t *testing.T) {
	c := New()

	c.Set("key", "value", time.Minute)
	c.Delete("key")

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestCacheClear(t *testing.T) {
	c := New()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	assert.False(t, okA)
	assert.False(t, okB)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New()
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				c.Set("shared", n, time.Minute)
				c.Get("shared")
			}
		}(i)
	}

	for i := 0; i < 8; i++ {
		<-done
	}

	_, ok := c.Get("shared")
	assert.True(t, ok)
}
