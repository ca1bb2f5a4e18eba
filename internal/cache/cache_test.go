package cache

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetSet(t *testing.T) {
	c := New[string, int](0)
	_, ok := c.Get("a")
	require.False(t, ok, "Get on empty cache reported a hit")

	c.Set("a", 1)
	c.Set("a", 2)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, Stats{Len: 1, Limit: 0, Hits: 1, Misses: 1}, c.Stats())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, string](3)
	for i := range 3 {
		c.Set(i, strconv.Itoa(i))
	}
	c.Get(0) // 1 is now the oldest
	c.Set(3, "3")

	_, ok := c.Get(1)
	assert.False(t, ok, "entry 1 should have been evicted")
	for _, k := range []int{0, 2, 3} {
		_, ok := c.Get(k)
		assert.True(t, ok, "entry %d missing", k)
	}
	assert.Equal(t, 3, c.Len())
}

func TestCache_DeleteClear(t *testing.T) {
	c := New[int, int](2)
	c.Set(1, 1)
	c.Set(2, 2)
	assert.True(t, c.Delete(1))
	assert.False(t, c.Delete(1), "second Delete")

	c.Set(3, 3)
	c.Set(4, 4)
	_, ok := c.Get(2)
	assert.False(t, ok, "entry 2 should have been evicted after delete")

	c.Clear()
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().Hits)

	c.Set(5, 5)
	v, _ := c.Get(5)
	assert.Equal(t, 5, v)
}

func TestCache_GetOrCreateOnce(t *testing.T) {
	c := New[string, int](0)
	var calls atomic.Int64

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := c.GetOrCreate("k", func() int {
				calls.Add(1)
				return 7
			})
			assert.Equal(t, 7, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "create calls")
	s := c.Stats()
	assert.Equal(t, uint64(15), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
}

func BenchmarkCacheGet(b *testing.B) {
	c := New[string, int](1000)
	for i := range 100 {
		c.Set(strconv.Itoa(i), i)
	}
	b.ResetTimer()
	for range b.N {
		c.Get("50")
	}
}
