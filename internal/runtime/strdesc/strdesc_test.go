package strdesc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAsciiAndRelease(t *testing.T) {
	d := NewAscii("hello")
	require.Equal(t, int32(5), d.Length())
	require.Equal(t, int32(1), d.Refcount())
	freed := d.Release()
	require.True(t, freed)
}

func TestRetainDelaysRelease(t *testing.T) {
	d := NewAscii("hi")
	d.Retain()
	require.False(t, d.Release())
	require.True(t, d.Release())
}

func TestConcat(t *testing.T) {
	a := NewAscii("foo")
	b := NewAscii("bar")
	c := Concat(a, b)
	require.Equal(t, "foobar", c.String())
}

func TestSliceInclusiveOneBased(t *testing.T) {
	s := NewAscii("HELLO")
	require.Equal(t, "ELL", Slice(s, 2, 4).String())
}

func TestSliceOpenEnded(t *testing.T) {
	s := NewAscii("HELLO")
	require.Equal(t, "LLO", Slice(s, 3, 100).String())
	require.Equal(t, "HEL", Slice(s, -1, 3).String())
}

func TestCompareLexicographic(t *testing.T) {
	require.True(t, Compare(NewAscii("abc"), NewAscii("abd")) < 0)
	require.Equal(t, int32(0), Compare(NewAscii("x"), NewAscii("x")))
}
