package arm64

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fasterbasic/internal/ir"
)

func TestEmitAOTIncludesPrologueEpilogueAndReturn(t *testing.T) {
	fn := simpleFunc()
	m := &ir.Module{Functions: []*ir.Function{fn}}
	out := EmitAOT(m)
	require.Contains(t, out, "stp x29, x30, [sp,")
	require.Contains(t, out, "ret")
	require.Contains(t, out, "bti c")
}

func TestEmitAOTPowerOfTwoDivUsesShift(t *testing.T) {
	t0 := ir.Temp{ID: 0, Class: ir.ClassL}
	t1 := ir.Temp{ID: 1, Class: ir.ClassL}
	entry := &ir.Block{Name: "entry", Instrs: []ir.Instr{
		{Op: ir.OpConst, Dst: t0, Imm: int64(16)},
		{Op: ir.OpDiv, Dst: t1, Args: []ir.Temp{t0, t0}, Imm: int64(4)},
		{Op: ir.OpReturn, Args: []ir.Temp{t1}},
	}}
	fn := &ir.Function{Name: "divtest", Blocks: []*ir.Block{entry}, Entry: entry}
	out := EmitAOT(&ir.Module{Functions: []*ir.Function{fn}})
	require.Contains(t, out, "asr")
	require.NotContains(t, out, "sdiv")
}

func TestEmitAOTGeneralDivUsesSdiv(t *testing.T) {
	t0 := ir.Temp{ID: 0, Class: ir.ClassL}
	t1 := ir.Temp{ID: 1, Class: ir.ClassL}
	entry := &ir.Block{Name: "entry", Instrs: []ir.Instr{
		{Op: ir.OpDiv, Dst: t1, Args: []ir.Temp{t0, t0}, Imm: int64(3)},
		{Op: ir.OpReturn, Args: []ir.Temp{t1}},
	}}
	fn := &ir.Function{Name: "gdiv", Blocks: []*ir.Block{entry}, Entry: entry}
	out := EmitAOT(&ir.Module{Functions: []*ir.Function{fn}})
	require.Contains(t, out, "sdiv")
}

func TestEmitAOTWholeArrayOpAnnotatesNEONLaneWidth(t *testing.T) {
	entry := &ir.Block{Name: "entry", Instrs: []ir.Instr{
		{Op: ir.OpCallRuntime, Symbol: "whole_array_op", Dst: ir.Temp{ID: 0, Class: ir.ClassPtr}},
		{Op: ir.OpReturn},
	}}
	fn := &ir.Function{Name: "vecop", Blocks: []*ir.Block{entry}, Entry: entry}
	out := EmitAOT(&ir.Module{Functions: []*ir.Function{fn}})
	require.Contains(t, out, "NEON lanes")
}

func TestEmitAOTBranchesReferenceBlockLabels(t *testing.T) {
	then := &ir.Block{Name: "then"}
	els := &ir.Block{Name: "else"}
	entry := &ir.Block{Name: "entry", Instrs: []ir.Instr{
		{Op: ir.OpCondJump, Args: []ir.Temp{{ID: 0, Class: ir.ClassW}}, Target: then, Else: els},
	}}
	then.Instrs = []ir.Instr{{Op: ir.OpJump, Target: els}}
	els.Instrs = []ir.Instr{{Op: ir.OpReturn}}
	fn := &ir.Function{Name: "branchy", Blocks: []*ir.Block{entry, then, els}, Entry: entry}
	out := EmitAOT(&ir.Module{Functions: []*ir.Function{fn}})
	require.True(t, strings.Contains(out, "_branchy_then") && strings.Contains(out, "_branchy_else"))
}
