package arm64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fasterbasic/internal/ir"
)

func simpleFunc() *ir.Function {
	entry := &ir.Block{Name: "entry"}
	t0 := ir.Temp{ID: 0, Class: ir.ClassL}
	t1 := ir.Temp{ID: 1, Class: ir.ClassL}
	t2 := ir.Temp{ID: 2, Class: ir.ClassL}
	entry.Instrs = []ir.Instr{
		{Op: ir.OpConst, Dst: t0, Imm: int64(1)},
		{Op: ir.OpConst, Dst: t1, Imm: int64(2)},
		{Op: ir.OpAdd, Dst: t2, Args: []ir.Temp{t0, t1}},
		{Op: ir.OpReturn, Args: []ir.Temp{t2}},
	}
	return &ir.Function{Name: "main", Blocks: []*ir.Block{entry}, Entry: entry, NumTemps: 3}
}

func TestAllocateAssignsEveryTemp(t *testing.T) {
	fn := simpleFunc()
	alloc := Allocate(fn)
	require.Len(t, alloc.Temps, 3)
	for id := 0; id < 3; id++ {
		loc, ok := alloc.Temps[id]
		require.True(t, ok)
		require.False(t, loc.Spilled)
	}
}

func TestAllocateHintsParamsIntoArgRegisters(t *testing.T) {
	p0 := ir.Temp{ID: 0, Class: ir.ClassL}
	p1 := ir.Temp{ID: 1, Class: ir.ClassD}
	entry := &ir.Block{Name: "entry", Instrs: []ir.Instr{{Op: ir.OpReturn, Args: []ir.Temp{p0}}}}
	fn := &ir.Function{Name: "f", Params: []ir.Temp{p0, p1}, Blocks: []*ir.Block{entry}, Entry: entry}
	alloc := Allocate(fn)
	require.Equal(t, "x0", alloc.Temps[0].Reg)
	require.Equal(t, "d0", alloc.Temps[1].Reg)
}

func TestAllocateSpillsWhenRegistersExhausted(t *testing.T) {
	entry := &ir.Block{Name: "entry"}
	var instrs []ir.Instr
	// More live-simultaneously integer temps than the scratch+callee
	// pool (8 arg + 7 scratch + 10 callee-saved = 25) to force a spill.
	n := 30
	var args []ir.Temp
	for i := 0; i < n; i++ {
		t := ir.Temp{ID: i, Class: ir.ClassL}
		instrs = append(instrs, ir.Instr{Op: ir.OpConst, Dst: t, Imm: int64(i)})
		args = append(args, t)
	}
	instrs = append(instrs, ir.Instr{Op: ir.OpReturn, Args: args})
	entry.Instrs = instrs
	fn := &ir.Function{Name: "many", Blocks: []*ir.Block{entry}, Entry: entry, NumTemps: n}

	alloc := Allocate(fn)
	spilled := 0
	for _, loc := range alloc.Temps {
		if loc.Spilled {
			spilled++
		}
	}
	require.Greater(t, spilled, 0)
}
