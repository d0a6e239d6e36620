// Package errors implements the FasterBASIC compiler-stage error taxonomy.
package errors

import (
	"fmt"
	"strings"

	"github.com/kr/text"
	pkgerrors "github.com/pkg/errors"
)

// Kind identifies which compiler stage raised an error.
type Kind string

const (
	LexError      Kind = "LexError"
	ParseError    Kind = "ParseError"
	SemanticError Kind = "SemanticError"
	ICE           Kind = "ICE"
	RuntimeError  Kind = "RuntimeError"
)

// Location identifies a point in source text.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// StackFrame is one entry of an ICE's call stack, recorded as the lowerer
// descends into nested statements/expressions.
type StackFrame struct {
	Function string
	Location Location
}

// CompileError is the single error type produced by every compiler stage.
// Stage is distinguished by Kind so callers can apply spec.md §7's policy
// table (report-and-continue vs. abort) uniformly.
type CompileError struct {
	Kind      Kind
	Message   string
	Location  Location
	Source    string
	CallStack []StackFrame
	cause     error
}

func New(kind Kind, message string, loc Location) *CompileError {
	return &CompileError{Kind: kind, Message: message, Location: loc}
}

func NewLex(message, file string, line, col int) *CompileError {
	return New(LexError, message, Location{File: file, Line: line, Column: col})
}

func NewParse(message, file string, line, col int) *CompileError {
	return New(ParseError, message, Location{File: file, Line: line, Column: col})
}

func NewSemantic(message, file string, line, col int) *CompileError {
	return New(SemanticError, message, Location{File: file, Line: line, Column: col})
}

// NewICE wraps cause (if non-nil) with a stack trace via pkg/errors so an
// internal compiler error is never silent (spec.md §7 policy for ICE).
func NewICE(message string, loc Location, cause error) *CompileError {
	ce := New(ICE, message, loc)
	if cause != nil {
		ce.cause = pkgerrors.WithStack(cause)
	} else {
		ce.cause = pkgerrors.New(message)
	}
	return ce
}

func NewRuntime(message string, loc Location) *CompileError {
	return New(RuntimeError, message, loc)
}

func (e *CompileError) WithSource(line string) *CompileError {
	e.Source = line
	return e
}

func (e *CompileError) WithFrame(function string, loc Location) *CompileError {
	e.CallStack = append(e.CallStack, StackFrame{Function: function, Location: loc})
	return e
}

func (e *CompileError) Unwrap() error { return e.cause }

func (e *CompileError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", e.Kind, e.Message)

	if e.Location.File != "" || e.Location.Line != 0 {
		fmt.Fprintf(&sb, "  at %s\n", e.Location)
		if e.Source != "" {
			prefix := fmt.Sprintf("%d | ", e.Location.Line)
			fmt.Fprintf(&sb, "\n%s\n", text.Indent(prefix+e.Source, "  "))
			caret := strings.Repeat(" ", len(prefix))
			if e.Location.Column > 0 {
				caret += strings.Repeat(" ", e.Location.Column-1)
			}
			fmt.Fprintf(&sb, "  %s^\n", caret)
		}
	}

	if len(e.CallStack) > 0 {
		sb.WriteString("\nCall Stack:\n")
		for _, f := range e.CallStack {
			if f.Function != "" {
				fmt.Fprintf(&sb, "  at %s (%s)\n", f.Function, f.Location)
			} else {
				fmt.Fprintf(&sb, "  at %s\n", f.Location)
			}
		}
	}

	if e.cause != nil {
		fmt.Fprintf(&sb, "\n%+v\n", e.cause)
	}

	return sb.String()
}

// Bag collects non-fatal diagnostics (ParseError/SemanticError continue
// gathering within one file per spec.md §7's propagation policy).
type Bag struct {
	errs     []*CompileError
	warnings []*CompileError
}

func (b *Bag) Add(e *CompileError) { b.errs = append(b.errs, e) }
func (b *Bag) AddWarning(e *CompileError) { b.warnings = append(b.warnings, e) }
func (b *Bag) HasErrors() bool     { return len(b.errs) > 0 }
func (b *Bag) Errors() []*CompileError   { return b.errs }
func (b *Bag) Warnings() []*CompileError { return b.warnings }

func (b *Bag) Error() string {
	var sb strings.Builder
	for _, e := range b.errs {
		sb.WriteString(e.Error())
	}
	return sb.String()
}
