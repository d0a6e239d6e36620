package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fasterbasic/internal/lexer"
	"fasterbasic/internal/parser"
	"fasterbasic/internal/sema"
)

func lower(t *testing.T, src string) *Module {
	t.Helper()
	sc := lexer.NewScanner("t.bas", src)
	toks := sc.ScanTokens()
	require.Empty(t, sc.Errors())
	p := parser.NewParser("t.bas", toks)
	prog := p.Parse()
	require.Empty(t, p.Errors())
	an := sema.NewAnalyzer("t.bas")
	an.Analyze(prog)
	require.False(t, an.Diagnostics().HasErrors())
	return Lower(prog, an)
}

func mainFn(m *Module) *Function {
	for _, f := range m.Functions {
		if f.Name == "main" {
			return f
		}
	}
	return nil
}

func countOp(fn *Function, op Op) int {
	n := 0
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			if in.Op == op {
				n++
			}
		}
	}
	return n
}

func TestLowerSimpleAssignProducesAdd(t *testing.T) {
	m := lower(t, "DIM a%\na = 1 + 2\n")
	fn := mainFn(m)
	require.NotNil(t, fn)
	require.Equal(t, 1, countOp(fn, OpAdd))
}

func TestLowerIfCreatesThenElseMergeBlocks(t *testing.T) {
	m := lower(t, "DIM x%\nIF x > 0 THEN\n  x = 1\nELSE\n  x = 2\nEND IF\n")
	fn := mainFn(m)
	require.GreaterOrEqual(t, len(fn.Blocks), 4) // entry, then, else, merge
	require.Equal(t, 1, countOp(fn, OpCondJump))
}

func TestLowerForLoopHasCondAndBodyBlocks(t *testing.T) {
	m := lower(t, "DIM i%\nFOR i = 1 TO 10\n  PRINT i\nNEXT i\n")
	fn := mainFn(m)
	require.Equal(t, 1, countOp(fn, OpCondJump))
	require.Equal(t, 1, countOp(fn, OpAdd)) // induction-variable increment
}

func TestLowerGosubUsesCallLikeEdge(t *testing.T) {
	m := lower(t, "GOSUB 100\nEND\n100 PRINT 1\nRETURN\n")
	fn := mainFn(m)
	require.Equal(t, 1, countOp(fn, OpGosub))
	require.Equal(t, 1, countOp(fn, OpGosubReturn))
}

func TestLowerGosubInsideIfResolvesSameReturnTarget(t *testing.T) {
	// The historical regression this opcode pair exists to avoid: a GOSUB
	// reached only through one arm of an IF must still RETURN to the
	// statement immediately following the GOSUB, not to the IF's merge
	// point.
	m := lower(t, "DIM x%\nIF x > 0 THEN\n  GOSUB 100\nEND IF\nEND\n100 PRINT 1\nRETURN\n")
	fn := mainFn(m)
	require.Equal(t, 1, countOp(fn, OpGosub))
	require.Equal(t, 1, countOp(fn, OpGosubReturn))
}

func TestLowerSelectCaseBuildsCompareChain(t *testing.T) {
	m := lower(t, "DIM n%\nSELECT CASE n\nCASE 1\n  PRINT 1\nCASE 2 TO 4\n  PRINT 2\nCASE ELSE\n  PRINT 0\nEND SELECT\n")
	fn := mainFn(m)
	require.GreaterOrEqual(t, countOp(fn, OpCmpEq), 1)
	require.GreaterOrEqual(t, countOp(fn, OpAnd), 1) // range arm: >= lo AND <= hi
}

func TestLowerTryCatchFinallyEmitsExceptionOps(t *testing.T) {
	m := lower(t, "DIM e%\nTRY\n  THROW 5, 1\nCATCH e\n  PRINT e\nFINALLY\n  PRINT 0\nEND TRY\n")
	fn := mainFn(m)
	require.Equal(t, 1, countOp(fn, OpExceptionSetup))
	require.Equal(t, 1, countOp(fn, OpExceptionThrow))
	require.Equal(t, 1, countOp(fn, OpExceptionEnd))
}

func TestLowerArrayElementUsesArrayElemAddr(t *testing.T) {
	m := lower(t, "DIM grid(1 TO 4, 1 TO 4) AS SINGLE\nDIM v!\ngrid(1, 1) = 2.0\nv = grid(1, 1)\n")
	fn := mainFn(m)
	require.GreaterOrEqual(t, countOp(fn, OpArrayElemAddr), 2)
}

func TestLowerWholeArrayAssignRoutesThroughRuntimeCall(t *testing.T) {
	m := lower(t, "DIM a(1 TO 4) AS SINGLE\nDIM b(1 TO 4) AS SINGLE\nDIM c(1 TO 4) AS SINGLE\nc() = a() + b()\n")
	fn := mainFn(m)
	found := false
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			if in.Op == OpCallRuntime && in.Symbol == "whole_array_op" {
				found = true
			}
		}
	}
	require.True(t, found)
}

func TestLowerFunctionDeclProducesOwnFunction(t *testing.T) {
	m := lower(t, "FUNCTION Sq%(n%)\n  RETURN n% * n%\nEND FUNCTION\nDIM r%\nr = Sq%(5)\n")
	var found *Function
	for _, f := range m.Functions {
		if f.Name == "SQ" {
			found = f
		}
	}
	require.NotNil(t, found)
	require.Len(t, found.Params, 1)
	require.Equal(t, ClassW, found.ReturnType)
}

func TestLowerUserFunctionCallDisambiguatedFromIndex(t *testing.T) {
	m := lower(t, "FUNCTION Sq%(n%)\n  RETURN n% * n%\nEND FUNCTION\nDIM r%\nr = Sq%(5)\n")
	fn := mainFn(m)
	found := false
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			if in.Op == OpCall && in.Symbol == "SQ" {
				found = true
			}
		}
	}
	require.True(t, found)
}
