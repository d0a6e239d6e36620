// Package neon implements FasterBASIC's NEON vectoriser (spec.md §4.5):
// given a whole-array assignment's element type, length, and
// WholeArrayAssignKind (already tagged by the parser/IR lowerer), it
// decides lane width, vector trip count, and scalar remainder, and
// classifies SIMD-eligible UDTs. It does not emit ARM64 instructions
// itself, and no other package calls PlanFor: internal/arm64 only uses
// LanesPerReg to annotate its whole_array_op call, and the kill switches
// loaded by internal/config are never passed in here. The split mirrors the teacher's
// internal/jit.AnalyzeLoop/LoopAnalysis split between "classify the
// shape" and "emit for the shape" (DESIGN.md).
package neon

import (
	"fasterbasic/internal/ast"
	"fasterbasic/internal/sema"
	"fasterbasic/internal/types"
)

// KillSwitches independently disable each vectorised form as a
// correctness crosscheck, never as a performance knob (spec.md §4.5/§9):
// running identical source with and without a switch enabled must
// produce identical observable output.
type KillSwitches struct {
	DisableCopy             bool
	DisableArithmetic       bool
	DisableLoopVectorization bool
}

// LanesPerReg returns the NEON lane count for elem per spec.md §4.5's
// table: int32/single=4, double=2, short=8, byte=16.
func LanesPerReg(elem types.Kind) int {
	switch elem {
	case types.Byte:
		return 16
	case types.Short:
		return 8
	case types.Int32, types.Single:
		return 4
	case types.Int64, types.Double:
		return 2
	default:
		return 1
	}
}

// Plan is the vectoriser's output for one whole-array assignment: a
// vector loop of VectorTripCount iterations each handling Lanes elements,
// followed by a scalar loop of RemainderCount iterations using identical
// semantics (spec.md §4.5 point 3: "Remainder must use the exact same
// semantics as the vector body").
type Plan struct {
	Kind            ast.WholeArrayAssignKind
	Elem            types.Kind
	Lanes           int
	VectorTripCount int64
	RemainderCount  int64
	UseFMA          bool
	Scalar          bool // true means: do not vectorise, fall back entirely
}

// PlanFor builds the vectorisation plan for an n-element whole-array
// assignment. It returns Scalar=true (never vectorised) when a kill
// switch disables the relevant form, or when the element type has no
// NEON lane mapping (e.g. STRING/UDT-with-non-uniform-layout arrays,
// which always run the scalar skeleton).
func PlanFor(n int64, elem types.Kind, kind ast.WholeArrayAssignKind, kill KillSwitches) *Plan {
	lanes := LanesPerReg(elem)
	if lanes <= 1 || kill.DisableLoopVectorization {
		return &Plan{Kind: kind, Elem: elem, Lanes: 1, VectorTripCount: 0, RemainderCount: n, Scalar: true}
	}
	if disabledFor(kind, kill) {
		return &Plan{Kind: kind, Elem: elem, Lanes: 1, VectorTripCount: 0, RemainderCount: n, Scalar: true}
	}
	trip := n / int64(lanes)
	rem := n % int64(lanes)
	return &Plan{
		Kind:            kind,
		Elem:            elem,
		Lanes:           lanes,
		VectorTripCount: trip,
		RemainderCount:  rem,
		UseFMA:          kind == ast.WAKindFMA,
	}
}

func disabledFor(kind ast.WholeArrayAssignKind, kill KillSwitches) bool {
	switch kind {
	case ast.WAKindCopy, ast.WAKindFill:
		return kill.DisableCopy
	default:
		return kill.DisableArithmetic
	}
}

// IsSIMDEligibleUDT reports whether udt's layout matches one of the three
// supported NEON vector lane patterns (spec.md §4.5): 4×INT32, 4×SINGLE,
// or 2×DOUBLE, with no padding and no mixed lane types.
func IsSIMDEligibleUDT(udt *sema.UDTInfo) bool {
	if len(udt.Fields) == 0 {
		return false
	}
	first := udt.Fields[0].Type.Kind
	for _, f := range udt.Fields {
		if f.Type.Kind != first {
			return false
		}
	}
	switch first {
	case types.Int32, types.Single:
		return len(udt.Fields) == 4
	case types.Double:
		return len(udt.Fields) == 2
	default:
		return false
	}
}

// ReductionKind classifies the five bulk-reduction builtins (spec.md
// §4.5 point 4).
type ReductionKind int

const (
	ReductionNone ReductionKind = iota
	ReductionSum
	ReductionMax
	ReductionMin
	ReductionAvg
	ReductionDot
)

func ClassifyReduction(builtin string) ReductionKind {
	switch builtin {
	case "SUM":
		return ReductionSum
	case "MAX":
		return ReductionMax
	case "MIN":
		return ReductionMin
	case "AVG":
		return ReductionAvg
	case "DOT":
		return ReductionDot
	default:
		return ReductionNone
	}
}

// IsElementwiseUnary reports whether builtin is one of the lanewise unary
// forms (spec.md §4.5 point 6): ABS -> fabs, SQR -> fsqrt.
func IsElementwiseUnary(builtin string) (symbol string, ok bool) {
	switch builtin {
	case "ABS":
		return "fabs", true
	case "SQR":
		return "fsqrt", true
	default:
		return "", false
	}
}
