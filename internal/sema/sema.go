// Package sema implements FasterBASIC's two-pass semantic analyzer
// (spec.md §4.3). Pass one collects top-level declarations (TYPE,
// FUNCTION, SUB, GLOBAL DIM) so forward references resolve; pass two
// walks every statement and expression, assigning types (the widened type
// for mixed arithmetic; the tree itself is not rewritten), and checking
// assignability, arity, and array rank. The walk is done through the ast.ExprVisitor/StmtVisitor
// interfaces, the same traversal idiom the parser's AST package exposes
// and the teacher's own tree-walking passes used.
package sema

import (
	"fmt"

	"fasterbasic/internal/ast"
	fberrors "fasterbasic/internal/errors"
	"fasterbasic/internal/types"
)

// FieldInfo is one UDT field, with its byte offset already computed so
// the IR lowerer can emit direct loads/stores (spec.md §4.4).
type FieldInfo struct {
	Name   string
	Type   types.Type
	Offset int
}

// UDTInfo is a resolved TYPE...END TYPE declaration.
type UDTInfo struct {
	Name   string
	Fields []FieldInfo
	Size   int
}

// FuncInfo is a resolved FUNCTION or SUB signature.
type FuncInfo struct {
	Name       string
	Params     []types.Type
	ParamNames []string
	Return     types.Type // Void for a SUB
	IsSub      bool
	Decl       ast.Stmt
}

type symbol struct {
	typ    types.Type
	global bool
}

type scope struct {
	vars map[string]*symbol
}

func newScope() *scope { return &scope{vars: map[string]*symbol{}} }

// Analyzer performs the two-pass walk and accumulates symbol tables that
// the IR lowerer consumes afterward.
type Analyzer struct {
	file string
	bag  *fberrors.Bag

	udts   map[string]*UDTInfo
	funcs  map[string]*FuncInfo
	labels map[string]bool

	scopes    []*scope
	curFunc   *FuncInfo
	loopDepth int
}

func NewAnalyzer(file string) *Analyzer {
	return &Analyzer{
		file:   file,
		bag:    &fberrors.Bag{},
		udts:   map[string]*UDTInfo{},
		funcs:  map[string]*FuncInfo{},
		labels: map[string]bool{},
		scopes: []*scope{newScope()},
	}
}

func (a *Analyzer) Diagnostics() *fberrors.Bag { return a.bag }
func (a *Analyzer) UDTs() map[string]*UDTInfo  { return a.udts }
func (a *Analyzer) Funcs() map[string]*FuncInfo { return a.funcs }

func (a *Analyzer) errorf(loc fberrors.Location, format string, args ...interface{}) {
	a.bag.Add(fberrors.New(fberrors.SemanticError, fmt.Sprintf(format, args...), loc))
}

// Analyze runs both passes over prog and returns true iff no semantic
// errors were recorded.
func (a *Analyzer) Analyze(prog *ast.Program) bool {
	a.collectDecls(prog)
	for _, s := range prog.Stmts {
		s.Accept(a)
	}
	return !a.bag.HasErrors()
}

// ---- pass 1: declarations ----

func (a *Analyzer) collectDecls(prog *ast.Program) {
	for _, s := range prog.Stmts {
		switch d := s.(type) {
		case *ast.LabelStmt:
			a.labels[d.Name] = true
		case *ast.TypeDeclStmt:
			a.declareUDT(d)
		case *ast.FunctionStmt:
			a.declareFunc(d.Name, d.Params, a.resolveSuffixOrAs(d.Suffix, d.AsType), false, d)
		case *ast.SubStmt:
			a.declareFunc(d.Name, d.Params, types.Scalar(types.Void), true, d)
		case *ast.DimStmt:
			if d.Global {
				a.declareVar(d, true)
			}
		}
	}
}

func (a *Analyzer) declareUDT(d *ast.TypeDeclStmt) {
	if _, exists := a.udts[d.Name]; exists {
		a.errorf(d.Loc, "TYPE %s redeclared", d.Name)
		return
	}
	info := &UDTInfo{Name: d.Name}
	offset := 0
	for _, f := range d.Fields {
		ft := a.resolveSuffixOrAs(f.Suffix, f.AsType)
		info.Fields = append(info.Fields, FieldInfo{Name: f.Name, Type: ft, Offset: offset})
		offset += ft.Size()
	}
	info.Size = offset
	a.udts[d.Name] = info
}

func (a *Analyzer) declareFunc(name string, params []ast.Param, ret types.Type, isSub bool, decl ast.Stmt) {
	if _, exists := a.funcs[name]; exists {
		a.errorf(decl.Location(), "%s redeclared", name)
		return
	}
	fi := &FuncInfo{Name: name, Return: ret, IsSub: isSub, Decl: decl}
	for _, p := range params {
		pt := a.resolveSuffixOrAs(p.Suffix, p.AsType)
		if p.IsArray {
			pt = types.ArrayOf(pt, 1)
		}
		fi.Params = append(fi.Params, pt)
		fi.ParamNames = append(fi.ParamNames, p.Name)
	}
	a.funcs[name] = fi
}

// resolveSuffixOrAs resolves a declared type from either a BASIC type
// suffix or an AS clause naming a builtin or UDT.
func (a *Analyzer) resolveSuffixOrAs(suffix byte, asType string) types.Type {
	if k, ok := types.SuffixKind(suffix); ok {
		return types.Scalar(k)
	}
	switch asType {
	case "", "INTEGER":
		return types.Scalar(types.Int32)
	case "LONG":
		return types.Scalar(types.Int64)
	case "SINGLE":
		return types.Scalar(types.Single)
	case "DOUBLE":
		return types.Scalar(types.Double)
	case "STRING":
		return types.Scalar(types.String)
	case "BYTE":
		return types.Scalar(types.Byte)
	case "SHORT":
		return types.Scalar(types.Short)
	case "HASHMAP":
		return types.Scalar(types.Hashmap)
	case "LIST":
		return types.Scalar(types.List)
	default:
		if _, ok := a.udts[asType]; ok {
			return types.NamedUDT(asType)
		}
		return types.NamedUDT(asType) // forward reference; validated on use
	}
}

// ---- scope handling ----

func (a *Analyzer) pushScope()     { a.scopes = append(a.scopes, newScope()) }
func (a *Analyzer) popScope()      { a.scopes = a.scopes[:len(a.scopes)-1] }
func (a *Analyzer) top() *scope    { return a.scopes[len(a.scopes)-1] }

func (a *Analyzer) lookup(name string) (*symbol, bool) {
	for i := len(a.scopes) - 1; i >= 0; i-- {
		if s, ok := a.scopes[i].vars[name]; ok {
			return s, true
		}
	}
	return nil, false
}

func (a *Analyzer) declareVar(d *ast.DimStmt, global bool) *symbol {
	var t types.Type
	if d.IsArray {
		elem := a.resolveSuffixOrAs(d.Suffix, d.AsType)
		t = types.ArrayOf(elem, len(d.Bounds))
	} else {
		t = a.resolveSuffixOrAs(d.Suffix, d.AsType)
	}
	sym := &symbol{typ: t, global: global}
	scopeIdx := len(a.scopes) - 1
	if global {
		scopeIdx = 0
	}
	a.scopes[scopeIdx].vars[d.Name] = sym
	for _, b := range d.Bounds {
		a.checkExpr(b.Lower)
		a.checkExpr(b.Upper)
	}
	return sym
}

func (a *Analyzer) checkExpr(e ast.Expr) types.Type {
	if e == nil {
		return types.Scalar(types.Invalid)
	}
	r, _ := e.Accept(a).(types.Type)
	e.SetType(r)
	return r
}

// ---- StmtVisitor ----

func (a *Analyzer) VisitProgram(s *ast.Program) interface{} {
	for _, st := range s.Stmts {
		st.Accept(a)
	}
	return nil
}

func (a *Analyzer) VisitLabel(s *ast.LabelStmt) interface{} { return nil }

func (a *Analyzer) VisitDim(s *ast.DimStmt) interface{} {
	if s.Global {
		return nil // already declared in pass 1
	}
	if _, exists := a.top().vars[s.Name]; exists {
		a.errorf(s.Loc, "%s redeclared in this scope", s.Name)
		return nil
	}
	a.declareVar(s, false)
	return nil
}

func (a *Analyzer) VisitRedim(s *ast.RedimStmt) interface{} {
	sym, ok := a.lookup(s.Name)
	if !ok {
		a.errorf(s.Loc, "undefined array %s", s.Name)
		return nil
	}
	if sym.typ.Kind != types.Array {
		a.errorf(s.Loc, "%s is not an array", s.Name)
	}
	for _, b := range s.Bounds {
		a.checkExpr(b.Lower)
		a.checkExpr(b.Upper)
	}
	return nil
}

func (a *Analyzer) VisitAssign(s *ast.AssignStmt) interface{} {
	lt := a.checkExpr(s.Target)
	rt := a.checkExpr(s.Value)
	if !a.assignable(lt, rt) {
		a.errorf(s.Loc, "cannot assign %s to %s", rt, lt)
	}
	return nil
}

func (a *Analyzer) assignable(lhs, rhs types.Type) bool {
	if lhs.Kind == types.Invalid || rhs.Kind == types.Invalid {
		return true // already reported
	}
	if lhs.IsNumeric() && rhs.IsNumeric() {
		return true // widening/narrowing both legal, spec.md §4.3
	}
	return lhs.Equal(rhs)
}

func (a *Analyzer) VisitWholeArrayAssign(s *ast.WholeArrayAssignStmt) interface{} {
	sym, ok := a.lookup(s.Dest)
	if !ok || sym.typ.Kind != types.Array {
		a.errorf(s.Loc, "%s is not an array", s.Dest)
	}
	if s.A != nil {
		a.checkExpr(s.A)
	}
	if s.B != nil {
		a.checkExpr(s.B)
	}
	if s.C != nil {
		a.checkExpr(s.C)
	}
	return nil
}

func (a *Analyzer) VisitExprStmt(s *ast.ExprStmt) interface{} {
	a.checkExpr(s.Expr)
	return nil
}

func (a *Analyzer) VisitIf(s *ast.IfStmt) interface{} {
	a.checkExpr(s.Cond)
	a.walkBlock(s.Then)
	for _, ei := range s.Elifs {
		a.checkExpr(ei.Cond)
		a.walkBlock(ei.Body)
	}
	a.walkBlock(s.Else)
	return nil
}

func (a *Analyzer) walkBlock(stmts []ast.Stmt) {
	a.pushScope()
	for _, st := range stmts {
		st.Accept(a)
	}
	a.popScope()
}

func (a *Analyzer) VisitFor(s *ast.ForStmt) interface{} {
	if _, ok := a.lookup(s.Var); !ok {
		a.top().vars[s.Var] = &symbol{typ: a.resolveSuffixOrAs(s.Suffix, "")}
	}
	a.checkExpr(s.Lo)
	a.checkExpr(s.Hi)
	if s.Step != nil {
		a.checkExpr(s.Step)
	}
	a.loopDepth++
	a.walkBlock(s.Body)
	a.loopDepth--
	return nil
}

func (a *Analyzer) VisitWhile(s *ast.WhileStmt) interface{} {
	a.checkExpr(s.Cond)
	a.loopDepth++
	a.walkBlock(s.Body)
	a.loopDepth--
	return nil
}

func (a *Analyzer) VisitDoLoop(s *ast.DoLoopStmt) interface{} {
	if s.Cond != nil {
		a.checkExpr(s.Cond)
	}
	a.loopDepth++
	a.walkBlock(s.Body)
	a.loopDepth--
	return nil
}

func (a *Analyzer) VisitRepeat(s *ast.RepeatStmt) interface{} {
	a.loopDepth++
	a.walkBlock(s.Body)
	a.loopDepth--
	a.checkExpr(s.Cond)
	return nil
}

// VisitSelectCase resolves the Open Question on string selectors: a
// string SELECT CASE compares lexicographically via strings.Compare, so
// CASE "A" TO "M" and CASE IS > "Q" are legal for STRING selectors too
// (documented in DESIGN.md).
func (a *Analyzer) VisitSelectCase(s *ast.SelectCaseStmt) interface{} {
	sel := a.checkExpr(s.Selector)
	for _, arm := range s.Arms {
		switch arm.Kind {
		case ast.CaseValues:
			for _, v := range arm.Values {
				vt := a.checkExpr(v)
				if !a.comparable(sel, vt) {
					a.errorf(v.Location(), "CASE value type %s incompatible with SELECT CASE type %s", vt, sel)
				}
			}
		case ast.CaseRange:
			a.checkExpr(arm.Lo)
			a.checkExpr(arm.Hi)
		case ast.CaseRelational:
			a.checkExpr(arm.RelValue)
		}
		a.walkBlock(arm.Body)
	}
	return nil
}

func (a *Analyzer) comparable(sel, v types.Type) bool {
	if sel.Kind == types.String || v.Kind == types.String {
		return sel.Kind == types.String && v.Kind == types.String
	}
	return sel.IsNumeric() && v.IsNumeric()
}

func (a *Analyzer) VisitGoto(s *ast.GotoStmt) interface{} {
	if !a.labels[s.Target] {
		a.errorf(s.Loc, "GOTO target %s is not a defined label", s.Target)
	}
	return nil
}

func (a *Analyzer) VisitGosub(s *ast.GosubStmt) interface{} {
	if !a.labels[s.Target] {
		a.errorf(s.Loc, "GOSUB target %s is not a defined label", s.Target)
	}
	return nil
}

func (a *Analyzer) VisitReturn(s *ast.ReturnStmt) interface{} {
	if s.Value == nil {
		return nil
	}
	rt := a.checkExpr(s.Value)
	if a.curFunc != nil && !a.assignable(a.curFunc.Return, rt) {
		a.errorf(s.Loc, "RETURN type %s does not match FUNCTION %s's declared type %s", rt, a.curFunc.Name, a.curFunc.Return)
	}
	return nil
}

func (a *Analyzer) VisitExit(s *ast.ExitStmt) interface{} {
	return nil
}

func (a *Analyzer) VisitTry(s *ast.TryStmt) interface{} {
	a.walkBlock(s.TryBody)
	for _, c := range s.Catches {
		if c.Code != nil {
			a.checkExpr(c.Code)
		}
		a.walkBlock(c.Body)
	}
	a.walkBlock(s.Finally)
	return nil
}

func (a *Analyzer) VisitThrow(s *ast.ThrowStmt) interface{} {
	a.checkExpr(s.Code)
	a.checkExpr(s.Line)
	return nil
}

func (a *Analyzer) VisitTypeDecl(s *ast.TypeDeclStmt) interface{} { return nil }

func (a *Analyzer) VisitFunction(s *ast.FunctionStmt) interface{} {
	fi := a.funcs[s.Name]
	prevFunc := a.curFunc
	a.curFunc = fi
	a.pushScope()
	for i, p := range s.Params {
		a.top().vars[p.Name] = &symbol{typ: fi.Params[i]}
	}
	for _, st := range s.Body {
		st.Accept(a)
	}
	a.popScope()
	a.curFunc = prevFunc
	return nil
}

func (a *Analyzer) VisitSub(s *ast.SubStmt) interface{} {
	fi := a.funcs[s.Name]
	prevFunc := a.curFunc
	a.curFunc = fi
	a.pushScope()
	for i, p := range s.Params {
		a.top().vars[p.Name] = &symbol{typ: fi.Params[i]}
	}
	for _, st := range s.Body {
		st.Accept(a)
	}
	a.popScope()
	a.curFunc = prevFunc
	return nil
}

func (a *Analyzer) VisitData(s *ast.DataStmt) interface{} {
	for _, v := range s.Values {
		a.checkExpr(v)
	}
	return nil
}

func (a *Analyzer) VisitRead(s *ast.ReadStmt) interface{} {
	for _, t := range s.Targets {
		a.checkExpr(t)
	}
	return nil
}

func (a *Analyzer) VisitRestore(s *ast.RestoreStmt) interface{} {
	if s.Label != "" && !a.labels[s.Label] {
		a.errorf(s.Loc, "RESTORE target %s is not a defined label", s.Label)
	}
	return nil
}

func (a *Analyzer) VisitOpen(s *ast.OpenStmt) interface{} {
	a.checkExpr(s.Path)
	return nil
}

func (a *Analyzer) VisitClose(s *ast.CloseStmt) interface{} { return nil }

func (a *Analyzer) VisitPrint(s *ast.PrintStmt) interface{} {
	for _, it := range s.Items {
		a.checkExpr(it.Value)
	}
	return nil
}

func (a *Analyzer) VisitPrintChannel(s *ast.PrintChannelStmt) interface{} {
	for _, it := range s.Items {
		a.checkExpr(it.Value)
	}
	return nil
}

func (a *Analyzer) VisitInput(s *ast.InputStmt) interface{} {
	for _, t := range s.Targets {
		a.checkExpr(t)
	}
	return nil
}

func (a *Analyzer) VisitInputChannel(s *ast.InputChannelStmt) interface{} {
	for _, t := range s.Targets {
		a.checkExpr(t)
	}
	return nil
}

func (a *Analyzer) VisitOption(s *ast.OptionStmt) interface{} { return nil }
func (a *Analyzer) VisitEnd(s *ast.EndStmt) interface{}       { return nil }

// ---- ExprVisitor ----
// Each Visit* returns a types.Type (boxed as interface{}) so checkExpr
// can assign it back onto the node via SetType.

func (a *Analyzer) VisitLiteral(e *ast.Literal) interface{} {
	switch e.Value.(type) {
	case int32:
		return types.Scalar(types.Int32)
	case int64:
		return types.Scalar(types.Int64)
	case float32:
		return types.Scalar(types.Single)
	case float64:
		return types.Scalar(types.Double)
	case string:
		return types.Scalar(types.String)
	default:
		return types.Scalar(types.Invalid)
	}
}

func (a *Analyzer) VisitVariable(e *ast.Variable) interface{} {
	sym, ok := a.lookup(e.Name)
	if !ok {
		if k, sufOk := types.SuffixKind(e.Suffix); sufOk {
			// Implicit declaration on first use, classic-BASIC style.
			t := types.Scalar(k)
			a.top().vars[e.Name] = &symbol{typ: t}
			return t
		}
		a.errorf(e.Loc, "undefined variable %s", e.Name)
		return types.Scalar(types.Invalid)
	}
	return sym.typ
}

func (a *Analyzer) VisitBinary(e *ast.Binary) interface{} {
	lt := a.checkExpr(e.Left)
	rt := a.checkExpr(e.Right)
	switch e.Operator {
	case "=", "<>", "<", ">", "<=", ">=":
		if lt.Kind == types.String && rt.Kind == types.String {
			return types.Scalar(types.Int32) // boolean-as-INTEGER
		}
		if lt.IsNumeric() && rt.IsNumeric() {
			return types.Scalar(types.Int32)
		}
		a.errorf(e.Loc, "cannot compare %s and %s", lt, rt)
		return types.Scalar(types.Int32)
	case "+":
		if lt.Kind == types.String && rt.Kind == types.String {
			return types.Scalar(types.String)
		}
		fallthrough
	case "-", "*", "/", "\\", "MOD", "^":
		w, ok := types.Widen(lt, rt)
		if !ok {
			a.errorf(e.Loc, "operator %s requires numeric operands, got %s and %s", e.Operator, lt, rt)
			return types.Scalar(types.Invalid)
		}
		if (e.Operator == "/" ) && w.Kind != types.Single && w.Kind != types.Double {
			return types.Scalar(types.Double)
		}
		return w
	default:
		a.errorf(e.Loc, "unknown operator %s", e.Operator)
		return types.Scalar(types.Invalid)
	}
}

func (a *Analyzer) VisitUnary(e *ast.Unary) interface{} {
	t := a.checkExpr(e.Operand)
	if e.Operator == "NOT" {
		return types.Scalar(types.Int32)
	}
	if !t.IsNumeric() {
		a.errorf(e.Loc, "unary %s requires a numeric operand, got %s", e.Operator, t)
	}
	return t
}

func (a *Analyzer) VisitLogical(e *ast.Logical) interface{} {
	a.checkExpr(e.Left)
	a.checkExpr(e.Right)
	return types.Scalar(types.Int32)
}

func (a *Analyzer) VisitCall(e *ast.Call) interface{} {
	for _, arg := range e.Args {
		a.checkExpr(arg)
	}
	if fi, ok := a.funcs[e.Callee]; ok {
		if len(e.Args) != len(fi.Params) {
			a.errorf(e.Loc, "%s expects %d argument(s), got %d", e.Callee, len(fi.Params), len(e.Args))
		}
		return fi.Return
	}
	return builtinReturnType(e.Callee, e.Args)
}

// builtinReturnType types the fixed built-in function surface (spec.md
// §6): math functions return DOUBLE, string functions return STRING/
// INTEGER, ERR/ERL/RND are INTEGER/DOUBLE.
func builtinReturnType(name string, args []ast.Expr) types.Type {
	switch name {
	case "LEN", "ASC", "ERR", "ERL", "INT":
		return types.Scalar(types.Int32)
	case "MID", "LEFT", "RIGHT", "CHR", "STR":
		return types.Scalar(types.String)
	case "VAL", "SUM", "MAX", "MIN", "AVG", "DOT", "RND",
		"ABS", "SQR", "SIN", "COS", "TAN", "EXP", "LOG":
		return types.Scalar(types.Double)
	default:
		return types.Scalar(types.Double)
	}
}

// VisitIndex also handles the syntactic ambiguity the parser cannot
// resolve on its own: "NAME(args)" is an array/hashmap subscript if NAME
// is a declared variable, and a FUNCTION call otherwise (spec.md §4.4).
func (a *Analyzer) VisitIndex(e *ast.Index) interface{} {
	sym, ok := a.lookup(e.Base)
	if !ok {
		for _, idx := range e.Indices {
			a.checkExpr(idx)
		}
		if fi, isFunc := a.funcs[e.Base]; isFunc {
			if len(e.Indices) != len(fi.Params) {
				a.errorf(e.Loc, "%s expects %d argument(s), got %d", e.Base, len(fi.Params), len(e.Indices))
			}
			return fi.Return
		}
		a.errorf(e.Loc, "undefined variable %s", e.Base)
		return types.Scalar(types.Invalid)
	}
	for _, idx := range e.Indices {
		a.checkExpr(idx)
	}
	switch sym.typ.Kind {
	case types.Array:
		if len(e.Indices) != sym.typ.Rank {
			a.errorf(e.Loc, "%s is rank %d, indexed with %d subscript(s)", e.Base, sym.typ.Rank, len(e.Indices))
		}
		return *sym.typ.Elem
	case types.Hashmap:
		return types.Scalar(types.Double) // HASHMAP values are stored untyped, widened on read
	default:
		a.errorf(e.Loc, "%s is not an array or hashmap", e.Base)
		return types.Scalar(types.Invalid)
	}
}

func (a *Analyzer) VisitWholeArray(e *ast.WholeArray) interface{} {
	sym, ok := a.lookup(e.Name)
	if !ok || sym.typ.Kind != types.Array {
		a.errorf(e.Loc, "%s is not an array", e.Name)
		return types.Scalar(types.Invalid)
	}
	return sym.typ
}

func (a *Analyzer) VisitFieldAccess(e *ast.FieldAccess) interface{} {
	ot := a.checkExpr(e.Object)
	if ot.Kind != types.UDT {
		a.errorf(e.Loc, "%s is not a UDT value", ot)
		return types.Scalar(types.Invalid)
	}
	udt, ok := a.udts[ot.UDTName]
	if !ok {
		a.errorf(e.Loc, "unknown TYPE %s", ot.UDTName)
		return types.Scalar(types.Invalid)
	}
	for _, f := range udt.Fields {
		if f.Name == e.Field {
			return f.Type
		}
	}
	a.errorf(e.Loc, "TYPE %s has no field %s", ot.UDTName, e.Field)
	return types.Scalar(types.Invalid)
}

func (a *Analyzer) VisitSlice(e *ast.Slice) interface{} {
	ot := a.checkExpr(e.Object)
	if ot.Kind != types.String {
		a.errorf(e.Loc, "slicing requires a STRING, got %s", ot)
	}
	if e.Lo != nil {
		a.checkExpr(e.Lo)
	}
	if e.Hi != nil {
		a.checkExpr(e.Hi)
	}
	return types.Scalar(types.String)
}
