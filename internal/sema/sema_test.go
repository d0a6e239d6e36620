package sema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fasterbasic/internal/lexer"
	"fasterbasic/internal/parser"
	"fasterbasic/internal/types"
)

func analyze(t *testing.T, src string) *Analyzer {
	t.Helper()
	sc := lexer.NewScanner("t.bas", src)
	toks := sc.ScanTokens()
	require.Empty(t, sc.Errors())
	p := parser.NewParser("t.bas", toks)
	prog := p.Parse()
	require.Empty(t, p.Errors())
	a := NewAnalyzer("t.bas")
	a.Analyze(prog)
	return a
}

func TestUndefinedVariableReportsError(t *testing.T) {
	a := analyze(t, "x = y% + 1\n")
	// y% gets implicitly declared (classic BASIC), but an unsuffixed
	// undeclared name must still fail.
	require.True(t, a.Diagnostics().HasErrors())
}

func TestWideningOnMixedArithmetic(t *testing.T) {
	a := analyze(t, "DIM a AS DOUBLE\nDIM b%\na = b% + 1.5\n")
	require.False(t, a.Diagnostics().HasErrors())
}

func TestArrayRankMismatch(t *testing.T) {
	a := analyze(t, "DIM grid(1 TO 4, 1 TO 4) AS SINGLE\nDIM v!\nv = grid(1)\n")
	require.True(t, a.Diagnostics().HasErrors())
}

func TestGotoUndefinedLabel(t *testing.T) {
	a := analyze(t, "GOTO 900\n")
	require.True(t, a.Diagnostics().HasErrors())
}

func TestGotoDefinedLabelOk(t *testing.T) {
	a := analyze(t, "10 PRINT 1\nGOTO 10\n")
	require.False(t, a.Diagnostics().HasErrors())
}

func TestFunctionArityCheck(t *testing.T) {
	a := analyze(t, "FUNCTION Sq%(n%)\n  RETURN n% * n%\nEND FUNCTION\nDIM r%\nr = Sq%(1, 2)\n")
	require.True(t, a.Diagnostics().HasErrors())
}

func TestUDTFieldAccess(t *testing.T) {
	a := analyze(t, "TYPE Point\n  x AS SINGLE\n  y AS SINGLE\nEND TYPE\nDIM p AS Point\nDIM v!\nv = p.x\n")
	require.False(t, a.Diagnostics().HasErrors())
	udt, ok := a.UDTs()["POINT"]
	require.True(t, ok)
	require.Len(t, udt.Fields, 2)
	require.Equal(t, types.Single, udt.Fields[0].Type.Kind)
}

func TestSelectCaseStringRangeIsComparable(t *testing.T) {
	a := analyze(t, "DIM name$\nname$ = \"bob\"\nSELECT CASE name$\nCASE \"a\" TO \"m\"\n  PRINT 1\nCASE ELSE\n  PRINT 0\nEND SELECT\n")
	require.False(t, a.Diagnostics().HasErrors())
}
