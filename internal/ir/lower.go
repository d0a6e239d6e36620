package ir

import (
	"fmt"

	"fasterbasic/internal/ast"
	"fasterbasic/internal/sema"
	"fasterbasic/internal/types"
)

// Lowerer walks a type-checked AST (as produced by internal/sema) and
// builds the IR Module. One Lowerer instance is used per Function body;
// Lower drives it once for the top-level program and once more per
// FUNCTION/SUB declaration.
type Lowerer struct {
	an       *sema.Analyzer
	fn       *Function
	cur      *Block
	labels   map[string]*Block
	loopExit []*Block // EXIT FOR/WHILE/DO targets, innermost last
	gosubRet []*Block // static approximation of the runtime return-address stack
	blockSeq int
	tempSeq  int
}

// Lower builds the whole Module: the top-level statements become an
// implicit "main" Function, and every FUNCTION/SUB declaration becomes
// its own Function.
func Lower(prog *ast.Program, an *sema.Analyzer) *Module {
	mod := &Module{}
	main := newLowerer(an).lowerFunctionBody("main", nil, topLevelOnly(prog.Stmts), types.Scalar(types.Void), false)
	mod.Functions = append(mod.Functions, main)
	for _, st := range prog.Stmts {
		switch d := st.(type) {
		case *ast.FunctionStmt:
			fi := an.Funcs()[d.Name]
			fn := newLowerer(an).lowerFunctionBody(d.Name, d.Params, d.Body, fi.Return, false)
			mod.Functions = append(mod.Functions, fn)
		case *ast.SubStmt:
			fn := newLowerer(an).lowerFunctionBody(d.Name, d.Params, d.Body, types.Scalar(types.Void), true)
			mod.Functions = append(mod.Functions, fn)
		}
	}
	return mod
}

// topLevelOnly drops FUNCTION/SUB/TYPE declarations from the statement
// list lowered into "main" — they are lowered separately as their own
// Function.
func topLevelOnly(stmts []ast.Stmt) []ast.Stmt {
	var out []ast.Stmt
	for _, s := range stmts {
		switch s.(type) {
		case *ast.FunctionStmt, *ast.SubStmt, *ast.TypeDeclStmt:
			continue
		}
		out = append(out, s)
	}
	return out
}

func newLowerer(an *sema.Analyzer) *Lowerer {
	return &Lowerer{an: an, labels: map[string]*Block{}}
}

func (l *Lowerer) lowerFunctionBody(name string, params []ast.Param, body []ast.Stmt, ret types.Type, isSub bool) *Function {
	l.fn = &Function{Name: name, IsSub: isSub, ReturnType: classOf(ret)}
	for _, p := range params {
		t := l.allocTemp(classOfSuffixOrAs(p.Suffix, p.AsType))
		l.fn.Params = append(l.fn.Params, t)
	}
	l.cur = l.newBlock("entry")
	l.fn.Entry = l.cur
	l.prescanLabels(body)
	for _, st := range body {
		l.lowerStmt(st)
	}
	if len(l.cur.Instrs) == 0 || l.cur.Instrs[len(l.cur.Instrs)-1].Op != OpReturn {
		l.cur.emit(Instr{Op: OpReturn})
	}
	l.fn.NumTemps = l.tempSeq
	return l.fn
}

// prescanLabels reserves one Block per LabelStmt up front so GOTO/GOSUB
// targets anywhere in the body (forward or backward) resolve to a real
// pointer before that block's own content is lowered — the pointer-based
// analogue of compregister/compiler.go's placeholder-then-patch jump
// technique (see ir.go's Block doc comment).
func (l *Lowerer) prescanLabels(stmts []ast.Stmt) {
	for _, s := range stmts {
		if lbl, ok := s.(*ast.LabelStmt); ok {
			l.labels[lbl.Name] = l.newBlock("L" + lbl.Name)
		}
	}
}

func (l *Lowerer) newBlock(prefix string) *Block {
	l.blockSeq++
	b := &Block{Name: fmt.Sprintf("%s_%d", prefix, l.blockSeq)}
	l.fn.Blocks = append(l.fn.Blocks, b)
	return b
}

func (l *Lowerer) allocTemp(c Class) Temp {
	t := Temp{ID: l.tempSeq, Class: c}
	l.tempSeq++
	return t
}

func classOf(t types.Type) Class {
	switch t.Kind {
	case types.Int32, types.Byte, types.Short:
		return ClassW
	case types.Int64:
		return ClassL
	case types.Single:
		return ClassS
	case types.Double:
		return ClassD
	default:
		return ClassPtr
	}
}

func classOfSuffixOrAs(suffix byte, asType string) Class {
	if k, ok := types.SuffixKind(suffix); ok {
		return classOf(types.Scalar(k))
	}
	switch asType {
	case "LONG":
		return ClassL
	case "SINGLE":
		return ClassS
	case "DOUBLE":
		return ClassD
	case "", "INTEGER", "BYTE", "SHORT":
		return ClassW
	default:
		return ClassPtr
	}
}

// jumpTo redirects control flow from the current block to dst via an
// unconditional jump, then makes dst the current block.
func (l *Lowerer) jumpTo(dst *Block) {
	l.cur.emit(Instr{Op: OpJump, Target: dst})
	l.cur = dst
}

func (l *Lowerer) lowerStmt(s ast.Stmt) {
	switch st := s.(type) {
	case *ast.LabelStmt:
		target := l.labels[st.Name]
		l.jumpTo(target)
	case *ast.DimStmt:
		l.lowerDim(st)
	case *ast.RedimStmt:
		l.lowerRedim(st)
	case *ast.AssignStmt:
		l.lowerAssign(st)
	case *ast.WholeArrayAssignStmt:
		l.lowerWholeArrayAssign(st)
	case *ast.ExprStmt:
		l.lowerExpr(st.Expr)
	case *ast.IfStmt:
		l.lowerIf(st)
	case *ast.ForStmt:
		l.lowerFor(st)
	case *ast.WhileStmt:
		l.lowerWhile(st)
	case *ast.DoLoopStmt:
		l.lowerDoLoop(st)
	case *ast.RepeatStmt:
		l.lowerRepeat(st)
	case *ast.SelectCaseStmt:
		l.lowerSelectCase(st)
	case *ast.GotoStmt:
		l.jumpTo(l.labels[st.Target])
		l.cur = l.newBlock("after_goto")
	case *ast.GosubStmt:
		l.lowerGosub(st)
	case *ast.ReturnStmt:
		l.lowerReturn(st)
	case *ast.ExitStmt:
		l.lowerExit(st)
	case *ast.TryStmt:
		l.lowerTry(st)
	case *ast.ThrowStmt:
		l.lowerThrow(st)
	case *ast.DataStmt, *ast.ReadStmt, *ast.RestoreStmt:
		l.lowerDataFamily(st)
	case *ast.OpenStmt:
		l.lowerOpen(st)
	case *ast.CloseStmt:
		path := l.lowerExpr(st.Channel)
		l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "channel_close", Args: []Temp{path}})
	case *ast.PrintStmt:
		l.lowerPrint(st.Items, nil)
	case *ast.PrintChannelStmt:
		ch := l.lowerExpr(st.Channel)
		l.lowerPrint(st.Items, &ch)
	case *ast.InputStmt:
		l.lowerInput(st.Targets, nil)
	case *ast.InputChannelStmt:
		ch := l.lowerExpr(st.Channel)
		l.lowerInput(st.Targets, &ch)
	case *ast.OptionStmt, *ast.TypeDeclStmt, *ast.FunctionStmt, *ast.SubStmt:
		// OPTION produces no IR and no later stage reads it, so OPTION
		// BOUNDS_CHECK has no effect on the emitted code; nested
		// declarations are lowered at the Module level by Lower, never
		// inline.
	case *ast.EndStmt:
		l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "basic_end"})
	default:
		panic(fmt.Sprintf("ir: unhandled statement %T", s))
	}
}

func (l *Lowerer) lowerDim(s *ast.DimStmt) {
	if !s.IsArray {
		return // scalars need no allocation; they live in a register/stack slot
	}
	var bounds []Temp
	for _, b := range s.Bounds {
		bounds = append(bounds, l.lowerExpr(b.Lower))
		bounds = append(bounds, l.lowerExpr(b.Upper))
	}
	elem := elemTypeOf(s.Suffix, s.AsType)
	dst := l.allocTemp(ClassPtr)
	l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "array_descriptor_alloc", Dst: dst, Args: bounds,
		Imm: arrayAllocInfo{ElemCode: elem, Rank: len(s.Bounds)}})
}

type arrayAllocInfo struct {
	ElemCode int32
	Rank     int
}

func elemTypeOf(suffix byte, asType string) int32 {
	if k, ok := types.SuffixKind(suffix); ok {
		return k.ElementTypeCode()
	}
	switch asType {
	case "BYTE":
		return types.Byte.ElementTypeCode()
	case "SHORT":
		return types.Short.ElementTypeCode()
	case "LONG":
		return types.Int64.ElementTypeCode()
	case "SINGLE":
		return types.Single.ElementTypeCode()
	case "DOUBLE":
		return types.Double.ElementTypeCode()
	case "STRING":
		return types.String.ElementTypeCode()
	case "", "INTEGER":
		return types.Int32.ElementTypeCode()
	default:
		return types.UDT.ElementTypeCode()
	}
}

func (l *Lowerer) lowerRedim(s *ast.RedimStmt) {
	var bounds []Temp
	for _, b := range s.Bounds {
		bounds = append(bounds, l.lowerExpr(b.Lower))
		bounds = append(bounds, l.lowerExpr(b.Upper))
	}
	sym := l.allocTemp(ClassPtr)
	op := "array_descriptor_redim"
	if s.Preserve {
		op = "array_descriptor_redim_preserve"
	}
	l.cur.emit(Instr{Op: OpCallRuntime, Symbol: op, Dst: sym, Args: bounds, Imm: s.Name})
}

func (l *Lowerer) lowerAssign(s *ast.AssignStmt) {
	val := l.lowerExpr(s.Value)
	switch target := s.Target.(type) {
	case *ast.Variable:
		l.cur.emit(Instr{Op: OpMove, Dst: l.allocTemp(val.Class), Args: []Temp{val}, Imm: target.Name})
	case *ast.Index:
		addr := l.lowerElementAddr(target)
		l.cur.emit(Instr{Op: OpStore, Args: []Temp{addr, val}})
	case *ast.FieldAccess:
		obj := l.lowerExpr(target.Object)
		l.cur.emit(Instr{Op: OpStoreField, Args: []Temp{obj, val}, Imm: target.Field})
	default:
		panic("ir: unassignable target")
	}
}

// lowerElementAddr emits one OpArrayElemAddr per access for
// &base[indices...]. The arm64 emitter turns it into a call to the
// runtime's array_elem_addr helper, which reads the 56-byte descriptor;
// no descriptor offsets are inlined and no index-bounds check is emitted.
func (l *Lowerer) lowerElementAddr(idx *ast.Index) Temp {
	base := l.allocTemp(ClassPtr)
	l.cur.emit(Instr{Op: OpLoad, Dst: base, Imm: idx.Base})
	var indices []Temp
	for _, e := range idx.Indices {
		indices = append(indices, l.lowerExpr(e))
	}
	addr := l.allocTemp(ClassPtr)
	l.cur.emit(Instr{Op: OpArrayElemAddr, Dst: addr, Args: append([]Temp{base}, indices...)})
	return addr
}

// lowerWholeArrayAssign tags the instruction with the parser's detected
// WholeArrayAssignKind and emits a whole_array_op runtime call; no
// scalar-loop-vs-NEON choice is made here, and internal/neon's Plan is
// not consulted by any later stage. The tagging follows spec.md §4.5's "the IR carries enough
// shape information that the vectoriser never re-derives it from source".
func (l *Lowerer) lowerWholeArrayAssign(s *ast.WholeArrayAssignStmt) {
	var args []Temp
	for _, e := range []ast.Expr{s.A, s.B, s.C} {
		if e == nil {
			continue
		}
		args = append(args, l.lowerExpr(e))
	}
	l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "whole_array_op", Args: args,
		Imm: wholeArrayInfo{Dest: s.Dest, Kind: s.Kind}})
}

type wholeArrayInfo struct {
	Dest string
	Kind ast.WholeArrayAssignKind
}

func (l *Lowerer) lowerIf(s *ast.IfStmt) {
	merge := l.newBlock("if_merge")
	l.lowerIfChain(s.Cond, s.Then, s.Elifs, s.Else, merge)
	l.cur = merge
}

func (l *Lowerer) lowerIfChain(cond ast.Expr, then []ast.Stmt, elifs []ast.ElseIf, els []ast.Stmt, merge *Block) {
	c := l.lowerExpr(cond)
	thenBlk := l.newBlock("then")
	elseBlk := l.newBlock("else")
	l.cur.emit(Instr{Op: OpCondJump, Args: []Temp{c}, Target: thenBlk, Else: elseBlk})

	l.cur = thenBlk
	for _, st := range then {
		l.lowerStmt(st)
	}
	l.jumpTo(merge)

	l.cur = elseBlk
	switch {
	case len(elifs) > 0:
		l.lowerIfChain(elifs[0].Cond, elifs[0].Body, elifs[1:], els, merge)
	default:
		for _, st := range els {
			l.lowerStmt(st)
		}
		l.jumpTo(merge)
	}
}

func (l *Lowerer) lowerFor(s *ast.ForStmt) {
	lo := l.lowerExpr(s.Lo)
	l.cur.emit(Instr{Op: OpMove, Dst: l.allocTemp(lo.Class), Args: []Temp{lo}, Imm: s.Var})
	hi := l.lowerExpr(s.Hi)
	var step Temp
	if s.Step != nil {
		step = l.lowerExpr(s.Step)
	} else {
		step = l.allocTemp(lo.Class)
		l.cur.emit(Instr{Op: OpConst, Dst: step, Imm: int32(1)})
	}

	cond := l.newBlock("for_cond")
	body := l.newBlock("for_body")
	exit := l.newBlock("for_exit")
	l.jumpTo(cond)

	cur := l.allocTemp(lo.Class)
	l.cur.emit(Instr{Op: OpLoad, Dst: cur, Imm: s.Var})
	test := l.allocTemp(ClassW)
	l.cur.emit(Instr{Op: OpCmpLe, Dst: test, Args: []Temp{cur, hi}})
	l.cur.emit(Instr{Op: OpCondJump, Args: []Temp{test}, Target: body, Else: exit})

	l.cur = body
	l.loopExit = append(l.loopExit, exit)
	for _, st := range s.Body {
		l.lowerStmt(st)
	}
	l.loopExit = l.loopExit[:len(l.loopExit)-1]
	next := l.allocTemp(lo.Class)
	l.cur.emit(Instr{Op: OpAdd, Dst: next, Args: []Temp{cur, step}})
	l.cur.emit(Instr{Op: OpMove, Args: []Temp{next}, Imm: s.Var})
	l.jumpTo(cond)

	l.cur = exit
}

func (l *Lowerer) lowerWhile(s *ast.WhileStmt) {
	cond := l.newBlock("while_cond")
	body := l.newBlock("while_body")
	exit := l.newBlock("while_exit")
	l.jumpTo(cond)
	c := l.lowerExpr(s.Cond)
	l.cur.emit(Instr{Op: OpCondJump, Args: []Temp{c}, Target: body, Else: exit})
	l.cur = body
	l.loopExit = append(l.loopExit, exit)
	for _, st := range s.Body {
		l.lowerStmt(st)
	}
	l.loopExit = l.loopExit[:len(l.loopExit)-1]
	l.jumpTo(cond)
	l.cur = exit
}

func (l *Lowerer) lowerDoLoop(s *ast.DoLoopStmt) {
	top := l.newBlock("do_top")
	body := l.newBlock("do_body")
	exit := l.newBlock("do_exit")
	l.jumpTo(top)

	if s.CondPos == ast.DoCondTop {
		c := l.lowerExpr(s.Cond)
		if s.Kind == ast.DoLoopUntil {
			c = l.negate(c)
		}
		l.cur.emit(Instr{Op: OpCondJump, Args: []Temp{c}, Target: body, Else: exit})
	} else {
		l.jumpTo(body)
	}

	l.cur = body
	l.loopExit = append(l.loopExit, exit)
	for _, st := range s.Body {
		l.lowerStmt(st)
	}
	l.loopExit = l.loopExit[:len(l.loopExit)-1]

	if s.CondPos == ast.DoCondBottom {
		c := l.lowerExpr(s.Cond)
		if s.Kind == ast.DoLoopUntil {
			c = l.negate(c)
		}
		l.cur.emit(Instr{Op: OpCondJump, Args: []Temp{c}, Target: top, Else: exit})
	} else {
		l.jumpTo(top)
	}
	l.cur = exit
}

func (l *Lowerer) lowerRepeat(s *ast.RepeatStmt) {
	body := l.newBlock("repeat_body")
	exit := l.newBlock("repeat_exit")
	l.jumpTo(body)
	l.loopExit = append(l.loopExit, exit)
	for _, st := range s.Body {
		l.lowerStmt(st)
	}
	l.loopExit = l.loopExit[:len(l.loopExit)-1]
	c := l.lowerExpr(s.Cond)
	l.cur.emit(Instr{Op: OpCondJump, Args: []Temp{c}, Target: exit, Else: body})
	l.cur = exit
}

func (l *Lowerer) negate(c Temp) Temp {
	out := l.allocTemp(ClassW)
	l.cur.emit(Instr{Op: OpNot, Dst: out, Args: []Temp{c}})
	return out
}

// lowerSelectCase lowers CaseValues/CaseRange arms to a compare chain and
// CaseRelational to a direct comparison; a STRING selector routes through
// the runtime's string_compare so range/relational arms reuse the same
// compare-chain shape as numeric selectors (DESIGN.md Open Question
// resolution: SELECT CASE on strings is lexicographic).
func (l *Lowerer) lowerSelectCase(s *ast.SelectCaseStmt) {
	sel := l.lowerExpr(s.Selector)
	merge := l.newBlock("select_merge")
	l.lowerCaseArms(sel, s.Arms, merge)
	l.cur = merge
}

func (l *Lowerer) lowerCaseArms(sel Temp, arms []ast.CaseArm, merge *Block) {
	if len(arms) == 0 {
		l.jumpTo(merge)
		return
	}
	arm := arms[0]
	if arm.Kind == ast.CaseElse {
		for _, st := range arm.Body {
			l.lowerStmt(st)
		}
		l.jumpTo(merge)
		return
	}

	match := l.newBlock("case_match")
	next := l.newBlock("case_next")
	cond := l.caseArmCond(sel, arm)
	l.cur.emit(Instr{Op: OpCondJump, Args: []Temp{cond}, Target: match, Else: next})

	l.cur = match
	for _, st := range arm.Body {
		l.lowerStmt(st)
	}
	l.jumpTo(merge)

	l.cur = next
	l.lowerCaseArms(sel, arms[1:], merge)
}

func (l *Lowerer) caseArmCond(sel Temp, arm ast.CaseArm) Temp {
	cmp := func(op Op, a, b Temp) Temp {
		if a.Class == ClassPtr {
			// STRING selector: compare string_compare's result against 0.
			c := l.allocTemp(ClassW)
			l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "string_compare", Dst: c, Args: []Temp{a, b}})
			zero := l.allocTemp(ClassW)
			l.cur.emit(Instr{Op: OpConst, Dst: zero, Imm: int32(0)})
			a, b = c, zero
		}
		out := l.allocTemp(ClassW)
		l.cur.emit(Instr{Op: op, Dst: out, Args: []Temp{a, b}})
		return out
	}
	switch arm.Kind {
	case ast.CaseRange:
		lo := l.lowerExpr(arm.Lo)
		hi := l.lowerExpr(arm.Hi)
		geLo := cmp(OpCmpGe, sel, lo)
		leHi := cmp(OpCmpLe, sel, hi)
		out := l.allocTemp(ClassW)
		l.cur.emit(Instr{Op: OpAnd, Dst: out, Args: []Temp{geLo, leHi}})
		return out
	case ast.CaseRelational:
		v := l.lowerExpr(arm.RelValue)
		return cmp(relOpToOp(arm.RelOp), sel, v)
	default: // CaseValues
		var acc Temp
		for i, ve := range arm.Values {
			v := l.lowerExpr(ve)
			eq := cmp(OpCmpEq, sel, v)
			if i == 0 {
				acc = eq
				continue
			}
			combined := l.allocTemp(ClassW)
			l.cur.emit(Instr{Op: OpOr, Dst: combined, Args: []Temp{acc, eq}})
			acc = combined
		}
		return acc
	}
}

func relOpToOp(op string) Op {
	switch op {
	case "=":
		return OpCmpEq
	case "<>":
		return OpCmpNe
	case "<":
		return OpCmpLt
	case "<=":
		return OpCmpLe
	case ">":
		return OpCmpGt
	default:
		return OpCmpGe
	}
}

// lowerGosub models GOSUB as a call-like edge distinct from the
// structured-control merge points every other statement produces: the
// continuation block is reserved before the jump so RETURN — which may
// be lexically anywhere, including nested inside an unrelated IF — has
// somewhere concrete to come back to (the historical "GOSUB inside IF"
// regression spec.md §9 calls out).
func (l *Lowerer) lowerGosub(s *ast.GosubStmt) {
	target := l.labels[s.Target]
	cont := l.newBlock("gosub_ret")
	l.cur.emit(Instr{Op: OpGosub, Target: target, Else: cont})
	l.gosubRet = append(l.gosubRet, cont)
	l.cur = cont
}

func (l *Lowerer) lowerReturn(s *ast.ReturnStmt) {
	if s.Value != nil {
		v := l.lowerExpr(s.Value)
		l.cur.emit(Instr{Op: OpReturn, Args: []Temp{v}})
		return
	}
	if len(l.gosubRet) > 0 {
		dest := l.gosubRet[len(l.gosubRet)-1]
		l.gosubRet = l.gosubRet[:len(l.gosubRet)-1]
		l.cur.emit(Instr{Op: OpGosubReturn, Target: dest})
		l.cur = l.newBlock("after_return")
		return
	}
	l.cur.emit(Instr{Op: OpReturn})
}

func (l *Lowerer) lowerExit(s *ast.ExitStmt) {
	switch s.Kind {
	case ast.ExitForLoop, ast.ExitWhileLoop, ast.ExitDoLoop:
		if len(l.loopExit) > 0 {
			l.jumpTo(l.loopExit[len(l.loopExit)-1])
			l.cur = l.newBlock("after_exit")
		}
	case ast.ExitSubroutine, ast.ExitFunc:
		l.cur.emit(Instr{Op: OpReturn})
		l.cur = l.newBlock("after_exit")
	}
}

// lowerTry lowers TRY/CATCH/FINALLY onto the setjmp-based exception model
// (spec.md §4.7): OpExceptionSetup installs a frame, the TRY body runs,
// and OpExceptionEnd tears the frame down on the body's normal exit; every
// CATCH arm then joins a single catch_done block, so FINALLY genuinely
// runs no matter which path out of the TRY is taken.
func (l *Lowerer) lowerTry(s *ast.TryStmt) {
	frame := l.allocTemp(ClassPtr)
	dispatch := l.newBlock("catch_dispatch")
	merge := l.newBlock("try_merge")

	l.cur.emit(Instr{Op: OpExceptionSetup, Dst: frame, Target: dispatch})
	for _, st := range s.TryBody {
		l.lowerStmt(st)
	}
	l.cur.emit(Instr{Op: OpExceptionEnd, Args: []Temp{frame}})
	l.lowerFinally(s.Finally)
	l.jumpTo(merge)

	l.cur = dispatch
	caught := l.newBlock("catch_done")
	l.lowerCatchArms(frame, s.Catches, caught)
	l.jumpTo(caught)
	l.lowerFinally(s.Finally)
	l.jumpTo(merge)

	l.cur = merge
}

func (l *Lowerer) lowerFinally(stmts []ast.Stmt) {
	for _, st := range stmts {
		l.lowerStmt(st)
	}
}

func (l *Lowerer) lowerCatchArms(frame Temp, catches []ast.CatchArm, merge *Block) {
	errCode := l.allocTemp(ClassW)
	l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "basic_err", Dst: errCode})
	l.lowerCatchChain(frame, errCode, catches, merge)
}

func (l *Lowerer) lowerCatchChain(frame, errCode Temp, catches []ast.CatchArm, merge *Block) {
	if len(catches) == 0 {
		l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "basic_rethrow", Args: []Temp{errCode}})
		return
	}
	arm := catches[0]
	if arm.Code == nil {
		for _, st := range arm.Body {
			l.lowerStmt(st)
		}
		return
	}
	match := l.newBlock("catch_match")
	next := l.newBlock("catch_next")
	codeVal := l.lowerExpr(arm.Code)
	eq := l.allocTemp(ClassW)
	l.cur.emit(Instr{Op: OpCmpEq, Dst: eq, Args: []Temp{errCode, codeVal}})
	l.cur.emit(Instr{Op: OpCondJump, Args: []Temp{eq}, Target: match, Else: next})

	l.cur = match
	for _, st := range arm.Body {
		l.lowerStmt(st)
	}
	l.jumpTo(merge)

	l.cur = next
	l.lowerCatchChain(frame, errCode, catches[1:], merge)
}

func (l *Lowerer) lowerThrow(s *ast.ThrowStmt) {
	code := l.lowerExpr(s.Code)
	line := l.lowerExpr(s.Line)
	l.cur.emit(Instr{Op: OpExceptionThrow, Args: []Temp{code, line}})
}

func (l *Lowerer) lowerDataFamily(s ast.Stmt) {
	switch d := s.(type) {
	case *ast.DataStmt:
		// DATA emits no IR, and no stage copies its literals into
		// Module.Data; READ below only calls data_read_next.
		_ = d
	case *ast.ReadStmt:
		for _, target := range d.Targets {
			v := l.allocTemp(ClassD)
			l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "data_read_next", Dst: v})
			switch tgt := target.(type) {
			case *ast.Variable:
				l.cur.emit(Instr{Op: OpMove, Args: []Temp{v}, Imm: tgt.Name})
			case *ast.Index:
				addr := l.lowerElementAddr(tgt)
				l.cur.emit(Instr{Op: OpStore, Args: []Temp{addr, v}})
			}
		}
	case *ast.RestoreStmt:
		l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "data_restore", Imm: d.Label})
	}
}

func (l *Lowerer) lowerOpen(s *ast.OpenStmt) {
	path := l.lowerExpr(s.Path)
	ch := l.lowerExpr(s.Channel)
	l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "channel_open", Args: []Temp{path, ch}, Imm: s.Mode})
}

func (l *Lowerer) lowerPrint(items []ast.PrintItem, channel *Temp) {
	for _, it := range items {
		v := l.lowerExpr(it.Value)
		sym := "basic_print_value"
		args := []Temp{v}
		if channel != nil {
			sym = "basic_print_channel"
			args = []Temp{*channel, v}
		}
		l.cur.emit(Instr{Op: OpCallRuntime, Symbol: sym, Args: args, Imm: it.Sep})
	}
}

func (l *Lowerer) lowerInput(targets []ast.Expr, channel *Temp) {
	for _, target := range targets {
		v := l.allocTemp(ClassD)
		sym := "basic_input_line"
		var args []Temp
		if channel != nil {
			sym = "basic_input_channel"
			args = []Temp{*channel}
		}
		l.cur.emit(Instr{Op: OpCallRuntime, Symbol: sym, Dst: v, Args: args})
		switch tgt := target.(type) {
		case *ast.Variable:
			l.cur.emit(Instr{Op: OpMove, Args: []Temp{v}, Imm: tgt.Name})
		case *ast.Index:
			addr := l.lowerElementAddr(tgt)
			l.cur.emit(Instr{Op: OpStore, Args: []Temp{addr, v}})
		}
	}
}

// ---- expressions ----

func (l *Lowerer) lowerExpr(e ast.Expr) Temp {
	switch expr := e.(type) {
	case *ast.Literal:
		return l.lowerLiteral(expr)
	case *ast.Variable:
		t := l.allocTemp(classOf(expr.Type()))
		l.cur.emit(Instr{Op: OpLoad, Dst: t, Imm: expr.Name})
		return t
	case *ast.Binary:
		return l.lowerBinary(expr)
	case *ast.Unary:
		return l.lowerUnary(expr)
	case *ast.Logical:
		return l.lowerLogical(expr)
	case *ast.Call:
		return l.lowerCall(expr)
	case *ast.Index:
		return l.lowerIndexLoad(expr)
	case *ast.WholeArray:
		t := l.allocTemp(ClassPtr)
		l.cur.emit(Instr{Op: OpLoad, Dst: t, Imm: expr.Name})
		return t
	case *ast.FieldAccess:
		obj := l.lowerExpr(expr.Object)
		t := l.allocTemp(classOf(expr.Type()))
		l.cur.emit(Instr{Op: OpLoadField, Dst: t, Args: []Temp{obj}, Imm: expr.Field})
		return t
	case *ast.Slice:
		obj := l.lowerExpr(expr.Object)
		var lo, hi Temp
		hasLo, hasHi := expr.Lo != nil, expr.Hi != nil
		if hasLo {
			lo = l.lowerExpr(expr.Lo)
		}
		if hasHi {
			hi = l.lowerExpr(expr.Hi)
		}
		args := []Temp{obj}
		if hasLo {
			args = append(args, lo)
		}
		if hasHi {
			args = append(args, hi)
		}
		t := l.allocTemp(ClassPtr)
		l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "string_slice", Dst: t, Args: args,
			Imm: sliceInfo{HasLo: hasLo, HasHi: hasHi}})
		return t
	default:
		panic(fmt.Sprintf("ir: unhandled expression %T", e))
	}
}

type sliceInfo struct{ HasLo, HasHi bool }

func (l *Lowerer) lowerLiteral(lit *ast.Literal) Temp {
	switch v := lit.Value.(type) {
	case int32:
		t := l.allocTemp(ClassW)
		l.cur.emit(Instr{Op: OpConst, Dst: t, Imm: v})
		return t
	case int64:
		t := l.allocTemp(ClassL)
		l.cur.emit(Instr{Op: OpConst, Dst: t, Imm: v})
		return t
	case float32:
		t := l.allocTemp(ClassS)
		l.cur.emit(Instr{Op: OpConst, Dst: t, Imm: v})
		return t
	case float64:
		t := l.allocTemp(ClassD)
		l.cur.emit(Instr{Op: OpConst, Dst: t, Imm: v})
		return t
	case string:
		t := l.allocTemp(ClassPtr)
		l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "string_new_ascii", Dst: t, Imm: v})
		return t
	default:
		panic("ir: unhandled literal kind")
	}
}

func (l *Lowerer) lowerBinary(b *ast.Binary) Temp {
	lhs := l.lowerExpr(b.Left)
	rhs := l.lowerExpr(b.Right)
	if b.Left.Type().Kind == types.String && b.Right.Type().Kind == types.String {
		return l.lowerStringBinary(b.Operator, lhs, rhs)
	}
	resultClass := classOf(b.Type())
	out := l.allocTemp(resultClass)
	switch b.Operator {
	case "+":
		l.cur.emit(Instr{Op: OpAdd, Dst: out, Args: []Temp{lhs, rhs}})
	case "-":
		l.cur.emit(Instr{Op: OpSub, Dst: out, Args: []Temp{lhs, rhs}})
	case "*":
		l.cur.emit(Instr{Op: OpMul, Dst: out, Args: []Temp{lhs, rhs}})
	case "/":
		l.cur.emit(Instr{Op: OpDiv, Dst: out, Args: []Temp{lhs, rhs}})
	case "\\":
		l.cur.emit(Instr{Op: OpUDiv, Dst: out, Args: []Temp{lhs, rhs}})
	case "MOD":
		l.cur.emit(Instr{Op: OpRem, Dst: out, Args: []Temp{lhs, rhs}})
	case "^":
		l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "basic_pow", Dst: out, Args: []Temp{lhs, rhs}})
	case "=", "<>", "<", "<=", ">", ">=":
		l.cur.emit(Instr{Op: relOpToOp(b.Operator), Dst: out, Args: []Temp{lhs, rhs}})
	default:
		panic("ir: unhandled binary operator " + b.Operator)
	}
	return out
}

func (l *Lowerer) lowerStringBinary(op string, lhs, rhs Temp) Temp {
	if op == "+" {
		out := l.allocTemp(ClassPtr)
		l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "string_concat", Dst: out, Args: []Temp{lhs, rhs}})
		return out
	}
	cmp := l.allocTemp(ClassW)
	l.cur.emit(Instr{Op: OpCallRuntime, Symbol: "string_compare", Dst: cmp, Args: []Temp{lhs, rhs}})
	zero := l.allocTemp(ClassW)
	l.cur.emit(Instr{Op: OpConst, Dst: zero, Imm: int32(0)})
	out := l.allocTemp(ClassW)
	l.cur.emit(Instr{Op: relOpToOp(op), Dst: out, Args: []Temp{cmp, zero}})
	return out
}

func (l *Lowerer) lowerUnary(u *ast.Unary) Temp {
	v := l.lowerExpr(u.Operand)
	out := l.allocTemp(v.Class)
	if u.Operator == "NOT" {
		l.cur.emit(Instr{Op: OpNot, Dst: out, Args: []Temp{v}})
		return out
	}
	if u.Operator == "-" {
		l.cur.emit(Instr{Op: OpNeg, Dst: out, Args: []Temp{v}})
		return out
	}
	return v // unary '+' is a no-op
}

func (l *Lowerer) lowerLogical(lg *ast.Logical) Temp {
	lhs := l.lowerExpr(lg.Left)
	rhs := l.lowerExpr(lg.Right)
	out := l.allocTemp(ClassW)
	switch lg.Operator {
	case "AND":
		l.cur.emit(Instr{Op: OpAnd, Dst: out, Args: []Temp{lhs, rhs}})
	case "OR":
		l.cur.emit(Instr{Op: OpOr, Dst: out, Args: []Temp{lhs, rhs}})
	case "XOR":
		l.cur.emit(Instr{Op: OpXor, Dst: out, Args: []Temp{lhs, rhs}})
	}
	return out
}

func (l *Lowerer) lowerCall(c *ast.Call) Temp {
	var args []Temp
	for _, a := range c.Args {
		args = append(args, l.lowerExpr(a))
	}
	out := l.allocTemp(classOf(c.Type()))
	if _, isUser := l.an.Funcs()[c.Callee]; isUser {
		l.cur.emit(Instr{Op: OpCall, Dst: out, Args: args, Symbol: c.Callee})
	} else {
		l.cur.emit(Instr{Op: OpCallRuntime, Dst: out, Args: args, Symbol: "basic_" + c.Callee})
	}
	return out
}

// lowerIndexLoad resolves the same array-vs-call ambiguity sema.VisitIndex
// does: if the base names a declared array/hashmap, this is an element
// load; otherwise it is a user FUNCTION call the parser could not tell
// apart from indexing syntactically.
func (l *Lowerer) lowerIndexLoad(idx *ast.Index) Temp {
	if fi, ok := l.an.Funcs()[idx.Base]; ok {
		var args []Temp
		for _, a := range idx.Indices {
			args = append(args, l.lowerExpr(a))
		}
		out := l.allocTemp(classOf(fi.Return))
		l.cur.emit(Instr{Op: OpCall, Dst: out, Args: args, Symbol: idx.Base})
		return out
	}
	addr := l.lowerElementAddr(idx)
	out := l.allocTemp(classOf(idx.Type()))
	l.cur.emit(Instr{Op: OpLoad, Dst: out, Args: []Temp{addr}})
	return out
}
