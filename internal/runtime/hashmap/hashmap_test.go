package hashmap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	m := New()
	m.Put("Alice", "A")
	m.Put("Bob", "B")
	v, ok := m.Get("Bob")
	require.True(t, ok)
	require.Equal(t, "B", v)
}

func TestHasKeyAndRemove(t *testing.T) {
	m := New()
	m.Put("k", 1)
	require.True(t, m.HasKey("k"))
	require.True(t, m.Remove("k"))
	require.False(t, m.HasKey("k"))
}

func TestGrowthPreservesAllEntries(t *testing.T) {
	m := New()
	for i := 0; i < 40; i++ {
		m.Put(fmt.Sprintf("key-%d", i), i)
	}
	require.Equal(t, 40, m.Size())
	for i := 0; i < 40; i++ {
		v, ok := m.Get(fmt.Sprintf("key-%d", i))
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

// TestSixIndependentMapsLargeHashes guards the spec's named regression:
// slot indexing must use unsigned remainder so hash values above 2^31
// still produce valid, non-negative slot indices.
func TestSixIndependentMapsLargeHashes(t *testing.T) {
	for mapIdx := 0; mapIdx < 6; mapIdx++ {
		m := New()
		for i := 0; i < 40; i++ {
			key := fmt.Sprintf("map%d-key%d-%s", mapIdx, i, "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")
			m.Put(key, i)
		}
		for i := 0; i < 40; i++ {
			key := fmt.Sprintf("map%d-key%d-%s", mapIdx, i, "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx")
			v, ok := m.Get(key)
			require.True(t, ok, "map %d key %d", mapIdx, i)
			require.Equal(t, i, v)
		}
	}
}

func TestClearResetsSizeAndRemovesKeys(t *testing.T) {
	m := New()
	m.Put("a", 1)
	m.Clear()
	require.Equal(t, 0, m.Size())
	require.False(t, m.HasKey("a"))
}
