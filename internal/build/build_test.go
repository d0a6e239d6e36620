package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fasterbasic/internal/config"
)

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestResolveProgramFailsOnMissingFile(t *testing.T) {
	_, err := NewResolver().ResolveProgram([]string{"/no/such/file.bas"})
	require.Error(t, err)
}

func TestBuildEmitsIRForSimpleProgram(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "main.bas", "DIM x%\nx = 1 + 2\nPRINT x\n")

	opts := &config.Options{Sources: []string{path}, EmitIR: true}
	b := NewBuilder(opts)
	res, err := b.Build()
	require.NoError(t, err)
	require.Contains(t, res.IRText, "func main:")
	require.NotEmpty(t, res.BuildID)
}

func TestBuildWritesAssemblyWhenCompileOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "main.bas", "DIM x%\nx = 1 + 2\nPRINT x\n")
	out := filepath.Join(dir, "prog")

	opts := &config.Options{Sources: []string{path}, OutputPath: out, CompileOnly: true}
	b := NewBuilder(opts)
	res, err := b.Build()
	require.NoError(t, err)
	require.FileExists(t, res.AsmPath)
	data, err := os.ReadFile(res.AsmPath)
	require.NoError(t, err)
	require.Contains(t, string(data), ".text")
}

func TestBuildMultipleFilesRenamesSubsequentMains(t *testing.T) {
	dir := t.TempDir()
	p1 := writeSource(t, dir, "a.bas", "DIM x%\nx = 1\n")
	p2 := writeSource(t, dir, "b.bas", "DIM y%\ny = 2\n")

	opts := &config.Options{Sources: []string{p1, p2}, EmitIR: true}
	b := NewBuilder(opts)
	res, err := b.Build()
	require.NoError(t, err)
	require.Contains(t, res.IRText, "func main:")
	require.Contains(t, res.IRText, "func main_1:")
}
