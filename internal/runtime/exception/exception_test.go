package exception

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupCatchesMatchingThrow(t *testing.T) {
	m := NewMachine()
	finallyRan := false
	caught := m.Setup(func() {
		defer func() { finallyRan = true }()
		m.Throw(42, 100)
	})
	require.True(t, caught)
	require.True(t, finallyRan)
	require.Equal(t, int32(42), m.Err())
	require.Equal(t, int32(100), m.Erl())
}

func TestSetupReturnsFalseWithNoThrow(t *testing.T) {
	m := NewMachine()
	caught := m.Setup(func() {})
	require.False(t, caught)
}

func TestUnrelatedPanicPropagates(t *testing.T) {
	m := NewMachine()
	require.Panics(t, func() {
		m.Setup(func() { panic("not a basic exception") })
	})
}

func TestMatchesCatchAllAndFiltered(t *testing.T) {
	require.True(t, Matches(nil, 7))
	code := int32(7)
	require.True(t, Matches(&code, 7))
	require.False(t, Matches(&code, 8))
}

func TestNestedSetupOuterCatchesRethrow(t *testing.T) {
	m := NewMachine()
	innerCode := int32(5)
	outerCaught := m.Setup(func() {
		inner := m.Setup(func() {
			m.Throw(innerCode, 1)
		})
		require.True(t, inner)
		m.Throw(99, 2) // rethrow a different code from the catch arm
	})
	require.True(t, outerCaught)
	require.Equal(t, int32(99), m.Err())
}
