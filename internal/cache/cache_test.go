package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New[string](time.Hour)
	defer c.Close()

	c.Set("key1", "value1")

	val, found := c.Get("key1")
	assert.True(t, found)
	assert.Equal(t, "value1", val)
}

func TestCache_GetMissing(t *testing.T) {
	c := New[string](time.Hour)
	defer c.Close()

	val, found := c.Get("nonexistent")
	assert.False(t, found)
	assert.Empty(t, val)
}

func TestCache_Expiration(t *testing.T) {
	c := New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key", "value")

	val, found := c.Get("key")
	assert.True(t, found)
	assert.Equal(t, "value", val)

	time.Sleep(100 * time.Millisecond)

	val, found = c.Get("key")
	assert.False(t, found)
	assert.Empty(t, val)
}

func TestCache_SetWithTTL(t *testing.T) {
	c := New[string](time.Hour)
	defer c.Close()

	c.SetWithTTL("short", "value", 50*time.Millisecond)
	c.Set("long", "value")

	_, found := c.Get("short")
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)

	_, found = c.Get("short")
	assert.False(t, found)
	_, found = c.Get("long")
	assert.True(t, found)
}

func TestCache_Delete(t *testing.T) {
	c := New[int](time.Hour)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")

	_, found := c.Get("a")
	assert.False(t, found)
	assert.Equal(t, 1, c.Len())
}

func TestCache_Purge(t *testing.T) {
	c := New[int](time.Hour)
	defer c.Close()

	c.SetWithTTL("gone", 1, time.Nanosecond)
	c.Set("kept", 2)
	time.Sleep(time.Millisecond)

	c.purge()
	assert.Equal(t, 1, c.Len())
}

func TestCache_CloseTwice(t *testing.T) {
	c := New[string](time.Hour)
	c.Close()
	assert.NotPanics(t, c.Close)
}

func TestTokenKey(t *testing.T) {
	k := TokenKey("alice", "secret")
	assert.Equal(t, k, TokenKey("alice", "secret"))
	assert.NotEqual(t, k, TokenKey("alice", "other"))
	assert.NotEqual(t, TokenKey("ab", "c"), TokenKey("a", "bc"))
	assert.NotContains(t, k, "secret")
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](time.Hour)
	defer c.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.Set("key", i)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c.Get("key")
		}
	}()

	wg.Wait()
}
