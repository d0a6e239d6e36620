package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fasterbasic/internal/ast"
	"fasterbasic/internal/lexer"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	sc := lexer.NewScanner("test.bas", src)
	toks := sc.ScanTokens()
	require.Empty(t, sc.Errors())
	p := NewParser("test.bas", toks)
	prog := p.Parse()
	require.Empty(t, p.Errors())
	return prog
}

func TestDimScalarAndArray(t *testing.T) {
	prog := parse(t, "DIM count%\nDIM grid(1 TO 10, 1 TO 10) AS SINGLE\n")
	require.Len(t, prog.Stmts, 2)
	d0 := prog.Stmts[0].(*ast.DimStmt)
	require.Equal(t, "COUNT", d0.Name)
	require.Equal(t, byte('%'), d0.Suffix)
	require.False(t, d0.IsArray)

	d1 := prog.Stmts[1].(*ast.DimStmt)
	require.True(t, d1.IsArray)
	require.Len(t, d1.Bounds, 2)
	require.Equal(t, "SINGLE", d1.AsType)
}

func TestIfMultilineWithElseIf(t *testing.T) {
	prog := parse(t, `IF x > 0 THEN
  y = 1
ELSEIF x < 0 THEN
  y = -1
ELSE
  y = 0
END IF
`)
	require.Len(t, prog.Stmts, 1)
	ifs := prog.Stmts[0].(*ast.IfStmt)
	require.Len(t, ifs.Then, 1)
	require.Len(t, ifs.Elifs, 1)
	require.Len(t, ifs.Else, 1)
}

func TestSingleLineIfNoEndIf(t *testing.T) {
	prog := parse(t, "IF x = 1 THEN PRINT \"one\" ELSE PRINT \"other\"\n")
	require.Len(t, prog.Stmts, 1)
	ifs := prog.Stmts[0].(*ast.IfStmt)
	require.Len(t, ifs.Then, 1)
	require.Len(t, ifs.Else, 1)
}

func TestForNextWithStep(t *testing.T) {
	prog := parse(t, "FOR i% = 10 TO 1 STEP -1\n  PRINT i%\nNEXT i%\n")
	f := prog.Stmts[0].(*ast.ForStmt)
	require.Equal(t, "I", f.Var)
	require.NotNil(t, f.Step)
	require.Len(t, f.Body, 1)
}

func TestDoLoopUntilBottom(t *testing.T) {
	prog := parse(t, "DO\n  x = x + 1\nLOOP UNTIL x = 10\n")
	d := prog.Stmts[0].(*ast.DoLoopStmt)
	require.Equal(t, ast.DoCondBottom, d.CondPos)
	require.Equal(t, ast.DoLoopUntil, d.Kind)
}

func TestSelectCaseRangeIsAndElse(t *testing.T) {
	prog := parse(t, `SELECT CASE grade%
CASE 90 TO 100
  PRINT "A"
CASE IS >= 80
  PRINT "B"
CASE ELSE
  PRINT "F"
END SELECT
`)
	sc := prog.Stmts[0].(*ast.SelectCaseStmt)
	require.Len(t, sc.Arms, 3)
	require.Equal(t, ast.CaseRange, sc.Arms[0].Kind)
	require.Equal(t, ast.CaseRelational, sc.Arms[1].Kind)
	require.Equal(t, ">=", sc.Arms[1].RelOp)
	require.Equal(t, ast.CaseElse, sc.Arms[2].Kind)
}

func TestTryCatchFinally(t *testing.T) {
	prog := parse(t, `TRY
  THROW 5
CATCH 5
  PRINT "caught"
FINALLY
  PRINT "cleanup"
END TRY
`)
	tr := prog.Stmts[0].(*ast.TryStmt)
	require.Len(t, tr.TryBody, 1)
	require.Len(t, tr.Catches, 1)
	require.Len(t, tr.Finally, 1)
}

// GOSUB inside a structured IF must parse as an ordinary statement within
// the IF's Then list, distinct from the IF's own merge point, so the IR
// lowerer can give it its own auxiliary-stack return address later.
func TestGosubInsideIf(t *testing.T) {
	prog := parse(t, "IF flag% THEN\n  GOSUB 100\nEND IF\n")
	ifs := prog.Stmts[0].(*ast.IfStmt)
	require.Len(t, ifs.Then, 1)
	_, ok := ifs.Then[0].(*ast.GosubStmt)
	require.True(t, ok)
}

func TestWholeArrayFMA(t *testing.T) {
	prog := parse(t, "D() = A() + B() * C()\n")
	wa := prog.Stmts[0].(*ast.WholeArrayAssignStmt)
	require.Equal(t, ast.WAKindFMA, wa.Kind)
	require.Equal(t, "D", wa.Dest)
}

func TestWholeArrayCopyAndNeg(t *testing.T) {
	prog := parse(t, "B() = A()\nC() = -A()\n")
	require.Equal(t, ast.WAKindCopy, prog.Stmts[0].(*ast.WholeArrayAssignStmt).Kind)
	require.Equal(t, ast.WAKindNeg, prog.Stmts[1].(*ast.WholeArrayAssignStmt).Kind)
}

func TestArrayElementAssignDistinctFromWholeArray(t *testing.T) {
	prog := parse(t, "A(1) = 5\n")
	as := prog.Stmts[0].(*ast.AssignStmt)
	_, ok := as.Target.(*ast.Index)
	require.True(t, ok)
}

func TestStringSlice(t *testing.T) {
	prog := parse(t, "x$ = s$(2 TO 5)\n")
	as := prog.Stmts[0].(*ast.AssignStmt)
	sl, ok := as.Value.(*ast.Slice)
	require.True(t, ok)
	require.NotNil(t, sl.Lo)
	require.NotNil(t, sl.Hi)
}

func TestOpenPrintChannelAndClose(t *testing.T) {
	prog := parse(t, "OPEN \"x.dat\" FOR OUTPUT AS #1\nPRINT #1, 42\nCLOSE #1\n")
	require.IsType(t, &ast.OpenStmt{}, prog.Stmts[0])
	pc := prog.Stmts[1].(*ast.PrintChannelStmt)
	require.Len(t, pc.Items, 1)
	require.IsType(t, &ast.CloseStmt{}, prog.Stmts[2])
}

func TestFunctionAndSubDeclarations(t *testing.T) {
	prog := parse(t, "FUNCTION Square%(n%)\n  RETURN n% * n%\nEND FUNCTION\nSUB Greet(name$)\n  PRINT name$\nEND SUB\n")
	fn := prog.Stmts[0].(*ast.FunctionStmt)
	require.Equal(t, "SQUARE", fn.Name)
	require.Len(t, fn.Params, 1)
	sub := prog.Stmts[1].(*ast.SubStmt)
	require.Equal(t, "GREET", sub.Name)
}

func TestTypeDeclaration(t *testing.T) {
	prog := parse(t, "TYPE Point\n  x AS SINGLE\n  y AS SINGLE\nEND TYPE\n")
	td := prog.Stmts[0].(*ast.TypeDeclStmt)
	require.Equal(t, "POINT", td.Name)
	require.Len(t, td.Fields, 2)
}

func TestOperatorPrecedence(t *testing.T) {
	prog := parse(t, "x = 1 + 2 * 3 ^ 2\n")
	as := prog.Stmts[0].(*ast.AssignStmt)
	top := as.Value.(*ast.Binary)
	require.Equal(t, "+", top.Operator)
	mul := top.Right.(*ast.Binary)
	require.Equal(t, "*", mul.Operator)
	pow := mul.Right.(*ast.Binary)
	require.Equal(t, "^", pow.Operator)
}

func TestHashSuffixedAssignParsesDoubleLiteral(t *testing.T) {
	prog := parse(t, "x# = 1.5\n")
	as := prog.Stmts[0].(*ast.AssignStmt)
	lit := as.Value.(*ast.Literal)
	_, isDouble := lit.Value.(float64)
	require.True(t, isDouble)
}
