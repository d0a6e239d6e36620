// Package ast defines the FasterBASIC abstract syntax tree. Every node
// implements Accept(visitor) over a closed set of Visit* methods, the same
// shape the teacher's internal/parser/ast.go and stmt.go use; the node set
// itself is rewritten for BASIC's grammar (spec.md §3/§4.2).
package ast

import (
	"fasterbasic/internal/errors"
	"fasterbasic/internal/types"
)

// Node is embedded by every AST node to carry source location and the
// type assigned by semantic analysis (spec.md §3: "Every node carries
// location and inferred type").
type Node struct {
	Loc errors.Location
	Typ types.Type
}

func (n *Node) Location() errors.Location { return n.Loc }
func (n *Node) Type() types.Type          { return n.Typ }
func (n *Node) SetType(t types.Type)      { n.Typ = t }

type Expr interface {
	Accept(v ExprVisitor) interface{}
	Location() errors.Location
	Type() types.Type
	SetType(types.Type)
}

// Literal: numeric or string constant.
type Literal struct {
	Node
	Value interface{} // int32, int64, float32, float64, or string
}

func (l *Literal) Accept(v ExprVisitor) interface{} { return v.VisitLiteral(l) }

// Variable: a bare identifier reference, suffix already resolved into Typ
// by the time semantic analysis runs.
type Variable struct {
	Node
	Name   string
	Suffix byte
}

func (v *Variable) Accept(vis ExprVisitor) interface{} { return vis.VisitVariable(v) }

// Binary: arithmetic/comparison/bitwise binary expression.
type Binary struct {
	Node
	Left     Expr
	Operator string
	Right    Expr
}

func (b *Binary) Accept(v ExprVisitor) interface{} { return v.VisitBinary(b) }

// Unary: -x, NOT x.
type Unary struct {
	Node
	Operator string
	Operand  Expr
}

func (u *Unary) Accept(v ExprVisitor) interface{} { return v.VisitUnary(u) }

// Logical: AND/OR/XOR with BASIC's dual bitwise/logical semantics
// depending on operand type (spec.md §6).
type Logical struct {
	Node
	Left     Expr
	Operator string
	Right    Expr
}

func (l *Logical) Accept(v ExprVisitor) interface{} { return v.VisitLogical(l) }

// Call: a FUNCTION invocation or built-in (EXP/SIN/ABS/SQR/LEN/...).
type Call struct {
	Node
	Callee string
	Args   []Expr
}

func (c *Call) Accept(v ExprVisitor) interface{} { return v.VisitCall(c) }

// Index: array element access A(i) or A(i,j); also HASHMAP subscript
// m("key") — disambiguated by the declared type of the base identifier
// during semantic analysis, per spec.md §4.4.
type Index struct {
	Node
	Base    string
	Indices []Expr
}

func (i *Index) Accept(v ExprVisitor) interface{} { return v.VisitIndex(i) }

// WholeArray: a bare A() reference used in a whole-array expression
// (spec.md §4.4/§4.5, e.g. "C() = A() + B()").
type WholeArray struct {
	Node
	Name string
}

func (w *WholeArray) Accept(v ExprVisitor) interface{} { return v.VisitWholeArray(w) }

// FieldAccess: UDT.field.
type FieldAccess struct {
	Node
	Object Expr
	Field  string
}

func (f *FieldAccess) Accept(v ExprVisitor) interface{} { return v.VisitFieldAccess(f) }

// Slice: s$(lo TO hi) string slicing; Lo/Hi nil means open-ended
// ("s$(lo TO)" / "s$(TO hi)") per spec.md §6.
type Slice struct {
	Node
	Object Expr
	Lo, Hi Expr
}

func (s *Slice) Accept(v ExprVisitor) interface{} { return v.VisitSlice(s) }

type ExprVisitor interface {
	VisitLiteral(e *Literal) interface{}
	VisitVariable(e *Variable) interface{}
	VisitBinary(e *Binary) interface{}
	VisitUnary(e *Unary) interface{}
	VisitLogical(e *Logical) interface{}
	VisitCall(e *Call) interface{}
	VisitIndex(e *Index) interface{}
	VisitWholeArray(e *WholeArray) interface{}
	VisitFieldAccess(e *FieldAccess) interface{}
	VisitSlice(e *Slice) interface{}
}
