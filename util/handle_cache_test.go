package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleCacheEvictsIdle(t *testing.T) {
	evicted := map[uint64]string{}
	c := NewHandleCache(2, func(k uint64, v string) { evicted[k] = v })

	c.Release(c.Insert(1, "one", 1))
	c.Release(c.Insert(2, "two", 1))

	h := c.Lookup(1)
	require.NotNil(t, h)
	require.Equal(t, "one", h.Value())
	c.Release(h)

	// 2 is now the least recently used entry
	c.Release(c.Insert(3, "three", 1))
	require.Equal(t, map[uint64]string{2: "two"}, evicted)
	require.Nil(t, c.Lookup(2))
	require.Equal(t, 2, c.Len())
}

func TestHandleCacheKeepsReferenced(t *testing.T) {
	var evicted []uint64
	c := NewHandleCache(1, func(k uint64, _ int) { evicted = append(evicted, k) })

	h1 := c.Insert(1, 10, 1)
	h2 := c.Insert(2, 20, 1)
	// over the limit but both entries are referenced
	require.Empty(t, evicted)
	require.Equal(t, 2, c.Len())

	c.Release(h1)
	c.Release(h2)
	require.Empty(t, evicted)

	c.Release(c.Insert(3, 30, 1))
	require.Equal(t, []uint64{1, 2}, evicted)
}

func TestHandleCacheErase(t *testing.T) {
	var evicted []uint64
	c := NewHandleCache(10, func(k uint64, _ int) { evicted = append(evicted, k) })
	for k := uint64(1); k <= 5; k++ {
		c.Release(c.Insert(k, int(k), 1))
	}

	held := c.Lookup(2)
	c.EraseIf(func(k uint64) bool { return k < 4 })
	require.ElementsMatch(t, []uint64{1, 3}, evicted)
	require.Equal(t, 2, c.Len())
	require.Nil(t, c.Lookup(2))

	require.Equal(t, 2, held.Value())
	c.Release(held)
	require.ElementsMatch(t, []uint64{1, 2, 3}, evicted)

	c.Erase(5)
	c.Erase(42)
	require.Equal(t, 1, c.Len())

	c.Close()
	require.ElementsMatch(t, []uint64{1, 2, 3, 4, 5}, evicted)
	require.Zero(t, c.Len())
}

func TestHandleCacheReplace(t *testing.T) {
	var evicted []string
	c := NewHandleCache(4, func(_ string, v string) { evicted = append(evicted, v) })

	old := c.Insert("seg", "v1", 1)
	c.Release(c.Insert("seg", "v2", 1))
	require.Empty(t, evicted)
	c.Release(old)
	require.Equal(t, []string{"v1"}, evicted)

	h := c.Lookup("seg")
	require.Equal(t, "v2", h.Value())
	c.Release(h)
}
