// Package arm64 implements FasterBASIC's register allocator and ARM64
// emitter (spec.md §4.6): a linear-scan allocator over the IR's SSA-
// flavored temporaries, with ABI-driven hints for argument/return
// registers, feeding both an AOT textual-assembly emitter and a JIT
// emitter that assembles directly into an mmap'd executable buffer.
// The opcode-encoding and relocation-patching shape (emit a 32-bit
// little-endian word, record a relocation, patch branch offsets once
// all blocks have addresses) is grounded on the teacher pack's ARM64
// AOT code generator (other_examples/60a8bb35_zhubert-rush__aot-arm64
// _codegen.go.go: ARM64CodeGenerator.emitInstruction/resolveRelocations).
package arm64

import "fasterbasic/internal/ir"

// PhysReg is one physical ARM64 register.
type PhysReg struct {
	Name        string
	Class       ir.Class
	CalleeSaved bool
	Reserved    bool // x29 (FP), x30 (LR), sp, x8 (indirect result) — never allocated
}

// Integer register file: x0-x7 argument/scratch, x9-x15 caller-saved
// scratch, x19-x28 callee-saved, x29/x30/sp reserved.
var gpRegs = buildGPRegs()
var fpRegs = buildFPRegs()

func buildGPRegs() []PhysReg {
	var regs []PhysReg
	for i := 0; i <= 7; i++ {
		regs = append(regs, PhysReg{Name: gpName(i), Class: ir.ClassL})
	}
	for i := 9; i <= 15; i++ {
		regs = append(regs, PhysReg{Name: gpName(i), Class: ir.ClassL})
	}
	for i := 19; i <= 28; i++ {
		regs = append(regs, PhysReg{Name: gpName(i), Class: ir.ClassL, CalleeSaved: true})
	}
	return regs
}

func buildFPRegs() []PhysReg {
	var regs []PhysReg
	for i := 0; i <= 7; i++ {
		regs = append(regs, PhysReg{Name: fpName(i), Class: ir.ClassD})
	}
	for i := 16; i <= 31; i++ {
		regs = append(regs, PhysReg{Name: fpName(i), Class: ir.ClassD})
	}
	for i := 8; i <= 15; i++ {
		regs = append(regs, PhysReg{Name: fpName(i), Class: ir.ClassD, CalleeSaved: true})
	}
	return regs
}

func gpName(i int) string { return "x" + itoa(i) }
func fpName(i int) string { return "d" + itoa(i) }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

// Allocation is one temp's assigned location: either a physical register
// (Reg != "") or a stack spill slot.
type Allocation struct {
	Reg         string
	Spilled     bool
	StackOffset int32 // byte offset from the frame's local-area base
}

// FuncAlloc is the allocator's result for one ir.Function.
type FuncAlloc struct {
	Temps            map[int]Allocation
	UsedCalleeSavedGP []string
	UsedCalleeSavedFP []string
	FrameSize        int32
}

func isFloat(c ir.Class) bool { return c == ir.ClassS || c == ir.ClassD }

// liveRange is a temp's [start,end] instruction index within the
// function's flattened instruction order (blocks concatenated in
// layout order — an approximation of true CFG liveness adequate for a
// single-pass allocator over straight-line-dominant BASIC control flow).
type liveRange struct {
	temp       int
	class      ir.Class
	start, end int
}

// Allocate runs linear-scan register allocation over fn: argument temps
// are hinted into the ABI argument registers (x0-x7/d0-d7) in order;
// everything else is assigned from the scratch pool first, the callee-
// saved pool second, and spilled to the stack once both are exhausted.
func Allocate(fn *ir.Function) *FuncAlloc {
	order, ranges := computeLiveness(fn)
	_ = order

	result := &FuncAlloc{Temps: map[int]Allocation{}}
	gpFree := append([]PhysReg{}, gpRegs...)
	fpFree := append([]PhysReg{}, fpRegs...)

	// ABI hint: bind parameter temps to argument registers up front so
	// the prologue does not need to shuffle them.
	gpArg, fpArg := 0, 0
	for _, p := range fn.Params {
		if isFloat(p.Class) {
			if fpArg < 8 {
				result.Temps[p.ID] = Allocation{Reg: fpName(fpArg)}
				fpFree = removeReg(fpFree, fpName(fpArg))
				fpArg++
				continue
			}
		} else if gpArg < 8 {
			result.Temps[p.ID] = Allocation{Reg: gpName(gpArg)}
			gpFree = removeReg(gpFree, gpName(gpArg))
			gpArg++
			continue
		}
	}

	active := map[int]liveRange{}
	spillSlots := int32(0)

	// Active-set linear scan: expire ranges ending before the current
	// range's start, then allocate (or spill) the current range.
	for _, r := range ranges {
		if _, already := result.Temps[r.temp]; already {
			continue
		}
		for t, a := range active {
			if a.end < r.start {
				delete(active, t)
				loc := result.Temps[t]
				if !loc.Spilled {
					if isFloat(a.class) {
						fpFree = append(fpFree, PhysReg{Name: loc.Reg, Class: a.class})
					} else {
						gpFree = append(gpFree, PhysReg{Name: loc.Reg, Class: a.class})
					}
				}
			}
		}

		var pool *[]PhysReg
		if isFloat(r.class) {
			pool = &fpFree
		} else {
			pool = &gpFree
		}
		if len(*pool) > 0 {
			reg := (*pool)[0]
			*pool = (*pool)[1:]
			result.Temps[r.temp] = Allocation{Reg: reg.Name}
			if reg.CalleeSaved {
				if isFloat(r.class) {
					result.UsedCalleeSavedFP = appendUnique(result.UsedCalleeSavedFP, reg.Name)
				} else {
					result.UsedCalleeSavedGP = appendUnique(result.UsedCalleeSavedGP, reg.Name)
				}
			}
		} else {
			result.Temps[r.temp] = Allocation{Spilled: true, StackOffset: spillSlots * 8}
			spillSlots++
		}
		active[r.temp] = r
	}

	result.FrameSize = alignTo16(spillSlots*8 + int32(len(result.UsedCalleeSavedGP)+len(result.UsedCalleeSavedFP))*8 + 16)
	return result
}

func alignTo16(n int32) int32 {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func removeReg(regs []PhysReg, name string) []PhysReg {
	out := regs[:0]
	for _, r := range regs {
		if r.Name != name {
			out = append(out, r)
		}
	}
	return out
}

// hasDst reports whether op writes a result temp. Pure control-transfer
// and store-like ops carry a zero-value Instr.Dst that must not be
// mistaken for a definition of temp #0.
func hasDst(op ir.Op) bool {
	switch op {
	case ir.OpStore, ir.OpStoreField, ir.OpJump, ir.OpCondJump, ir.OpReturn,
		ir.OpLabel, ir.OpSammPush, ir.OpSammPop, ir.OpSammRetain,
		ir.OpExceptionThrow, ir.OpExceptionEnd, ir.OpGosub, ir.OpGosubReturn:
		return false
	default:
		return true
	}
}

// computeLiveness flattens fn's blocks into one instruction order and
// computes each temp's [firstDef-or-use, lastUse] span across it.
func computeLiveness(fn *ir.Function) ([]ir.Instr, []liveRange) {
	var order []ir.Instr
	spans := map[int]*liveRange{}
	idx := 0
	touch := func(t ir.Temp, isDef bool) {
		r, ok := spans[t.ID]
		if !ok {
			r = &liveRange{temp: t.ID, class: t.Class, start: idx, end: idx}
			spans[t.ID] = r
		}
		if idx < r.start && !isDef {
			r.start = idx
		}
		if idx > r.end {
			r.end = idx
		}
	}
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			order = append(order, in)
			if hasDst(in.Op) {
				touch(in.Dst, true)
			}
			for _, a := range in.Args {
				touch(a, false)
			}
			idx++
		}
	}
	ranges := make([]liveRange, 0, len(spans))
	for _, r := range spans {
		ranges = append(ranges, *r)
	}
	// Sort by start index (simple insertion sort; function bodies are
	// small enough that O(n^2) is not a concern here).
	for i := 1; i < len(ranges); i++ {
		for j := i; j > 0 && ranges[j-1].start > ranges[j].start; j-- {
			ranges[j-1], ranges[j] = ranges[j], ranges[j-1]
		}
	}
	return order, ranges
}
