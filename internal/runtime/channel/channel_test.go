package channel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fasterbasic/internal/ast"
)

func TestOpenOutputThenCloseWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	tbl := NewTable()
	require.NoError(t, tbl.Open(1, path, ast.OpenOutput))
	e, ok := tbl.Get(1)
	require.True(t, ok)
	_, err := e.File.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, tbl.Close(1))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestDoubleOpenSameChannelFails(t *testing.T) {
	dir := t.TempDir()
	tbl := NewTable()
	require.NoError(t, tbl.Open(1, filepath.Join(dir, "a.txt"), ast.OpenOutput))
	require.Error(t, tbl.Open(1, filepath.Join(dir, "b.txt"), ast.OpenOutput))
}

func TestCloseUnopenedChannelFails(t *testing.T) {
	tbl := NewTable()
	require.Error(t, tbl.Close(5))
}

func TestHashmapChannelPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	tbl := NewTable()
	require.NoError(t, tbl.Open(1, path, ast.OpenHashmap))
	e, _ := tbl.Get(1)
	require.NoError(t, e.Put("Bob", "B"))
	require.NoError(t, tbl.Close(1))

	tbl2 := NewTable()
	require.NoError(t, tbl2.Open(2, path, ast.OpenHashmap))
	e2, _ := tbl2.Get(2)
	v, ok, err := e2.GetValue("Bob")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "B", v)
	tbl2.Shutdown()
}
