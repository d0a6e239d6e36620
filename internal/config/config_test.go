package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	opts, err := Load([]string{"prog.bas"})
	require.NoError(t, err)
	require.Equal(t, []string{"prog.bas"}, opts.Sources)
	require.Equal(t, "a.out", opts.OutputPath)
	require.False(t, opts.JIT)
}

func TestLoadFlags(t *testing.T) {
	opts, err := Load([]string{"-o", "prog", "--jit", "-i", "main.bas", "lib.bas"})
	require.NoError(t, err)
	require.Equal(t, "prog", opts.OutputPath)
	require.True(t, opts.JIT)
	require.True(t, opts.EmitIR)
	require.Equal(t, []string{"main.bas", "lib.bas"}, opts.Sources)
}

func TestLoadNeonKillSwitches(t *testing.T) {
	opts, err := Load([]string{"--no-neon-copy", "--no-neon-arith", "prog.bas"})
	require.NoError(t, err)
	require.True(t, opts.DisableNEONCopy)
	require.True(t, opts.DisableNEONArithmetic)
	require.False(t, opts.DisableNEONLoopVec)
}
