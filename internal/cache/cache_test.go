package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New(0, 4)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 42)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestTTLExpiry(t *testing.T) {
	c := New(10*time.Millisecond, 4)
	c.Set("a", "v")

	_, ok := c.Get("a")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.GetStats().Entries)
}

func TestEvictionAtCapacity(t *testing.T) {
	c := New(0, 3)
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		time.Sleep(time.Millisecond)
	}

	// Touch k0 and k2 so k1 is the stalest.
	c.Get("k0")
	time.Sleep(time.Millisecond)
	c.Get("k2")
	time.Sleep(time.Millisecond)

	c.Set("k3", 3)
	assert.Equal(t, 3, c.GetStats().Entries)
	_, ok := c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k3")
	assert.True(t, ok)
}

func TestDeleteAndClear(t *testing.T) {
	c := New(0, 4)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.GetStats().Entries)
}
