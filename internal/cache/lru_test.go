package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func byteLen(b []byte) int64 { return int64(len(b)) }

func TestLRUCacheEvictsByCount(t *testing.T) {
	c := NewLRUCache[[]byte](2, 1<<20, byteLen)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	_, _ = c.Get("a")
	c.Set("c", []byte("3"))

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUCacheEvictsBySize(t *testing.T) {
	c := NewLRUCache[[]byte](10, 10, byteLen)
	c.Set("a", make([]byte, 4))
	c.Set("b", make([]byte, 4))
	c.Set("c", make([]byte, 4))

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(8), c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("huge", make([]byte, 11))
	_, ok = c.Get("huge")
	assert.False(t, ok)
	assert.Equal(t, int64(8), c.Size())
}

func TestLRUCacheReplaceUpdatesSize(t *testing.T) {
	c := NewLRUCache[[]byte](10, 10, byteLen)
	c.Set("a", make([]byte, 3))
	c.Set("b", make([]byte, 3))
	c.Set("b", make([]byte, 8))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(8), c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("b", make([]byte, 20))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Size())
}

func TestLRUCacheDeleteAndClear(t *testing.T) {
	c := NewLRUCache[string](4, 100, func(s string) int64 { return int64(len(s)) })
	c.Set("a", "xx")
	c.Set("b", "yyy")
	c.Delete("a")
	assert.Equal(t, int64(3), c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Size())
	_, ok := c.Get("b")
	assert.False(t, ok)
}
