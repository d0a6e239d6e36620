// Package build drives FasterBASIC's end-to-end pipeline: lex, parse,
// analyse, lower, vectorise and emit, for one or more .bas source files
// passed to a single `fbc` invocation. FasterBASIC has no cross-file
// IMPORT statement (spec.md §4.2's statement grammar is exhaustive and
// does not list one), so the teacher's ImportResolver/ModuleGraph import-
// dependency machinery has no equivalent feature to serve here. What
// survives is its *shape*: resolve a well-defined compile order up front,
// then compile each unit and link the results — the topological sort
// degenerates to "argument order" since there are no inter-file edges,
// but keeping the two-phase structure lets a future multi-file dialect
// extension (shared DATA pools, common SUBs) slot in without a rewrite.
package build

import (
	"fmt"
	"os"

	"fasterbasic/internal/ast"
	"fasterbasic/internal/ir"
	"fasterbasic/internal/lexer"
	"fasterbasic/internal/parser"
	"fasterbasic/internal/sema"
)

// SourceUnit is one compiled .bas file.
type SourceUnit struct {
	Path    string
	Source  string
	Program *ast.Program
	Sema    *sema.Analyzer
	Module  *ir.Module
}

// ProgramGraph is the resolved compile order for a build invocation —
// the direct descendant of the teacher's ModuleGraph, minus the
// dependency edges FasterBASIC's grammar doesn't have.
type ProgramGraph struct {
	Units []*SourceUnit
}

// Resolver reads and parses each requested file in argument order. It
// keeps the teacher's ImportResolver's name so the "resolve, then link"
// two-step stays legible to anyone cross-referencing the earlier design,
// even though there is only one resolution rule now: compile order ==
// argument order.
type Resolver struct{}

func NewResolver() *Resolver { return &Resolver{} }

// ResolveProgram lexes, parses, and semantically analyses every path in
// order, failing fast on the first file with errors — FasterBASIC programs
// don't share scope across files, so later files can't observe an earlier
// file's diagnostics, but a build that can't fully analyse unit N has
// nothing meaningful to link into unit N+1's position.
func (r *Resolver) ResolveProgram(paths []string) (*ProgramGraph, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no source files given")
	}
	graph := &ProgramGraph{}
	for _, p := range paths {
		unit, err := r.resolveUnit(p)
		if err != nil {
			return nil, err
		}
		graph.Units = append(graph.Units, unit)
	}
	return graph, nil
}

func (r *Resolver) resolveUnit(path string) (*SourceUnit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	sc := lexer.NewScanner(path, string(src))
	toks := sc.ScanTokens()
	if errs := sc.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("%s: %d lexer error(s): %v", path, len(errs), errs)
	}

	p := parser.NewParser(path, toks)
	prog := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("%s: %d parse error(s): %v", path, len(errs), errs)
	}

	an := sema.NewAnalyzer(path)
	an.Analyze(prog)
	if an.Diagnostics().HasErrors() {
		return nil, fmt.Errorf("%s: semantic errors: %v", path, an.Diagnostics().Errors())
	}

	mod := ir.Lower(prog, an)

	return &SourceUnit{Path: path, Source: string(src), Program: prog, Sema: an, Module: mod}, nil
}

// LinkModules combines every unit's lowered IR into one ir.Module whose
// functions are concatenated in resolve order — the direct analogue of
// the teacher's byte-level LinkModules, operating on typed IR functions
// instead of raw bytecode arrays. Each unit's own "main" becomes a
// uniquely named entry function except the first unit's, which keeps the
// name "main" and becomes the program's true entry point; later units'
// top-level statements are available only through their own FUNCTION/SUB
// declarations (BASIC has no cross-file top-level execution order to
// preserve beyond "first file's main runs").
func LinkModules(graph *ProgramGraph) (*ir.Module, error) {
	if len(graph.Units) == 0 {
		return nil, fmt.Errorf("nothing to link")
	}
	out := &ir.Module{}
	for i, u := range graph.Units {
		for _, fn := range u.Module.Functions {
			if fn.Name == "main" && i > 0 {
				fn.Name = fmt.Sprintf("main_%d", i)
			}
			out.Functions = append(out.Functions, fn)
		}
		out.Data = append(out.Data, u.Module.Data...)
	}
	return out, nil
}
