package samm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRoot struct{ freed *bool }

func (f fakeRoot) Retain() Root { return f }
func (f fakeRoot) Release() bool {
	*f.freed = true
	return true
}

func TestPushPopReleasesRootsOnScopeExit(t *testing.T) {
	m := NewMachine()
	m.Init()
	m.Push()
	freed := false
	m.Track(fakeRoot{&freed})
	require.False(t, freed)
	m.Pop()
	require.True(t, freed)
}

func TestRetainSurvivesScopeExit(t *testing.T) {
	m := NewMachine()
	m.Init()
	m.Push() // outer
	m.Push() // inner
	freed := false
	r := fakeRoot{&freed}
	m.Track(r)
	m.Retain(r)
	m.Pop() // inner pops, root retained into outer
	require.False(t, freed)
	m.Pop() // outer pops, root now actually released
	require.True(t, freed)
}

func TestDepthTracksNesting(t *testing.T) {
	m := NewMachine()
	m.Init()
	require.Equal(t, 1, m.Depth())
	m.Push()
	require.Equal(t, 2, m.Depth())
	m.Pop()
	require.Equal(t, 1, m.Depth())
}

func TestShutdownReleasesEverythingLeftOnTheStack(t *testing.T) {
	m := NewMachine()
	m.Init()
	m.Push()
	freed := false
	m.Track(fakeRoot{&freed})
	m.Shutdown()
	require.True(t, freed)
	require.Equal(t, 0, m.Depth())
}
