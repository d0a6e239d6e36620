package arrdesc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestDescriptorSizeIs56Bytes(t *testing.T) {
	require.Equal(t, uintptr(Size), unsafe.Sizeof(Descriptor{})-unsafe.Sizeof([]byte(nil)))
}

func TestAllocInvariantRank1(t *testing.T) {
	d := Alloc(1, 1, 10, 0, 0, 4, ElemInt32)
	require.Equal(t, int64(10), d.Length)
	require.Equal(t, int32(4), d.ElementSize)
	require.Equal(t, int32(1), d.Dimensions)
	require.Equal(t, int32(1), d.LowerBound1)
	require.Equal(t, int32(10), d.UpperBound1)
}

func TestAllocInvariantRank2(t *testing.T) {
	d := Alloc(2, 1, 4, 1, 4, 4, ElemSingle)
	require.Equal(t, int64(16), d.Length)
	require.True(t, d.InBounds(4, 4))
	require.False(t, d.InBounds(5, 4))
}

func TestLinearIndexRank2RowMajor(t *testing.T) {
	d := Alloc(2, 1, 2, 1, 3, 4, ElemInt32)
	require.Equal(t, int64(0), d.LinearIndex(1, 1))
	require.Equal(t, int64(1), d.LinearIndex(1, 2))
	require.Equal(t, int64(3), d.LinearIndex(2, 1))
}

func TestRedimPreserveKeepsPriorElements(t *testing.T) {
	d := Alloc(1, 1, 4, 0, 0, 4, ElemInt32)
	buf := d.Elem(1, 0)
	buf[0] = 42
	d.Redim(8, true)
	require.Equal(t, int64(8), d.Length)
	require.Equal(t, byte(42), d.Elem(1, 0)[0])
}

func TestRedimWithoutPreserveDropsContents(t *testing.T) {
	d := Alloc(1, 1, 4, 0, 0, 4, ElemInt32)
	d.Elem(1, 0)[0] = 42
	d.Redim(8, false)
	require.Equal(t, byte(0), d.Elem(1, 0)[0])
}

func TestEraseReleasesStringElementsThenZeroesDescriptor(t *testing.T) {
	d := Alloc(1, 1, 3, 0, 0, 8, ElemString)
	released := 0
	d.Erase(func(elem []byte) { released++ })
	require.Equal(t, 3, released)
	require.Equal(t, int64(0), d.Length)
}
