package arm64

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"fasterbasic/internal/ir"
)

// Relocation is a branch site whose target block address was not yet
// known when the instruction was encoded, grounded on the teacher pack's
// AOT code generator's Relocation/resolveRelocations shape
// (other_examples/60a8bb35_zhubert-rush__aot-arm64_codegen.go.go), but
// applied here to JIT machine code rather than assembled text.
type Relocation struct {
	Offset int    // byte offset of the instruction to patch
	Target string // target block's fully-qualified label
	Kind   byte   // 0 = unconditional B/BL (26-bit), 1 = CBNZ (19-bit)
}

// JITBuffer is mmap'd machine code, RW while being assembled and RX once
// sealed (spec.md §4.6: "machine code assembled into a mmap'd RWX buffer
// ... buffer flipped to RX").
type JITBuffer struct {
	mem        []byte
	entryLabel string
	labels     map[string]int
}

// AssembleJIT encodes m's functions directly to ARM64 machine words,
// resolves intra-module branches, and returns an executable buffer whose
// entry point is the module's "main" function.
func AssembleJIT(m *ir.Module) (*JITBuffer, error) {
	asm := &jitAssembler{labels: map[string]int{}}
	for _, fn := range m.Functions {
		asm.emitFunction(fn)
	}
	if err := asm.resolve(); err != nil {
		return nil, err
	}

	mem, err := unix.Mmap(-1, 0, len(asm.code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap jit buffer: %w", err)
	}
	copy(mem, asm.code)

	return &JITBuffer{mem: mem, entryLabel: asmLabel("main"), labels: asm.labels}, nil
}

// Seal flips the buffer from RW to RX, per spec.md §4.6.
func (j *JITBuffer) Seal() error {
	return unix.Mprotect(j.mem, unix.PROT_READ|unix.PROT_EXEC)
}

// EntryPointer returns the address of main's entry inside the mapped
// buffer as a raw unsafe.Pointer to the first instruction (not a Go func
// value); the buffer handling follows the teacher's reference JIT
// (other_examples/33950481_launix-de-memcp__scm-jit.go.go: allocExec/
// makeRX). Callers must Seal() the buffer before jumping to this address.
func (j *JITBuffer) EntryPointer() (unsafe.Pointer, error) {
	off, ok := j.labels[j.entryLabel]
	if !ok {
		return nil, fmt.Errorf("jit: entry label %q not emitted", j.entryLabel)
	}
	return unsafe.Pointer(&j.mem[off]), nil
}

func (j *JITBuffer) Close() error { return unix.Munmap(j.mem) }

type jitAssembler struct {
	code   []byte
	labels map[string]int
	relocs []Relocation
}

func (a *jitAssembler) word(w uint32) {
	a.code = append(a.code, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
}

func (a *jitAssembler) emitFunction(fn *ir.Function) {
	label := asmLabel(fn.Name)
	alloc := Allocate(fn)

	a.labels[label] = len(a.code)
	a.word(0xD503245F) // bti c
	// stp x29, x30, [sp, -frame]!
	a.word(stpPre(29, 30, 31, -alloc.FrameSize))
	a.word(movRegSP(29, 31)) // mov x29, sp

	for _, blk := range fn.Blocks {
		a.labels[fmt.Sprintf("%s_%s", label, blk.Name)] = len(a.code)
		for _, in := range blk.Instrs {
			a.emitInstr(label, alloc, in)
		}
	}

	a.labels[fmt.Sprintf("%s_epilogue", label)] = len(a.code)
	a.word(ldpPost(29, 30, 31, alloc.FrameSize))
	a.word(0xD65F03C0) // ret
}

// emitInstr encodes the common scalar-integer subset of the IR directly
// to machine words (add/sub/mul/sdiv/cmp/branches/mov-immediate/ret),
// matching the bit layouts the teacher's AOT generator documents
// (ARM64_ADD_REG etc. in other_examples/60a8bb35_...). Ops with no direct
// single-instruction encoding here (runtime calls, exceptions, NEON
// vector forms) are left to the AOT path; the JIT path is the fast
// scalar-loop target spec.md §4.6 describes, not a full reimplementation
// of the AOT emitter.
func (a *jitAssembler) emitInstr(label string, alloc *FuncAlloc, in ir.Instr) {
	rd := regNum(alloc, in.Dst)
	switch in.Op {
	case ir.OpConst:
		if v, ok := constInt(in.Imm); ok {
			a.emitMovImm(rd, v)
		}
	case ir.OpMove:
		a.word(movReg(rd, regNum(alloc, in.Args[0])))
	case ir.OpAdd:
		a.word(addSubReg(0x8B, rd, regNum(alloc, in.Args[0]), regNum(alloc, in.Args[1])))
	case ir.OpSub:
		a.word(addSubReg(0xCB, rd, regNum(alloc, in.Args[0]), regNum(alloc, in.Args[1])))
	case ir.OpMul:
		a.word(mulReg(rd, regNum(alloc, in.Args[0]), regNum(alloc, in.Args[1])))
	case ir.OpDiv:
		a.word(divReg(rd, regNum(alloc, in.Args[0]), regNum(alloc, in.Args[1]), true))
	case ir.OpUDiv:
		a.word(divReg(rd, regNum(alloc, in.Args[0]), regNum(alloc, in.Args[1]), false))
	case ir.OpCmpEq, ir.OpCmpNe, ir.OpCmpLt, ir.OpCmpLe, ir.OpCmpGt, ir.OpCmpGe:
		a.word(cmpReg(regNum(alloc, in.Args[0]), regNum(alloc, in.Args[1])))
		a.word(csetReg(rd, condFor(in.Op)))
	case ir.OpJump:
		a.relocs = append(a.relocs, Relocation{Offset: len(a.code), Target: fmt.Sprintf("%s_%s", label, in.Target.Name), Kind: 0})
		a.word(0x14000000) // b <patched>
	case ir.OpCondJump:
		a.relocs = append(a.relocs, Relocation{Offset: len(a.code), Target: fmt.Sprintf("%s_%s", label, in.Target.Name), Kind: 1})
		a.word(cbnz(regNum(alloc, in.Args[0]), 0))
		a.relocs = append(a.relocs, Relocation{Offset: len(a.code), Target: fmt.Sprintf("%s_%s", label, in.Else.Name), Kind: 0})
		a.word(0x14000000)
	case ir.OpReturn:
		if len(in.Args) > 0 {
			a.word(movReg(0, regNum(alloc, in.Args[0])))
		}
		a.relocs = append(a.relocs, Relocation{Offset: len(a.code), Target: fmt.Sprintf("%s_epilogue", label), Kind: 0})
		a.word(0x14000000)
	default:
		// Everything else (runtime calls, descriptors, exceptions, NEON
		// forms) requires linking against runtime symbols resolved by
		// dlsym per spec.md §4.6; the scalar JIT path emits a trap so a
		// mis-routed instruction fails loudly instead of silently
		// executing garbage.
		a.word(0xD4200000) // brk #0
	}
}

func (a *jitAssembler) emitMovImm(rd int, v int64) {
	a.word(movzImm(rd, uint16(v)))
	if (v >> 16) != 0 {
		a.word(movkImm(rd, uint16(v>>16), 16))
	}
}

func (a *jitAssembler) resolve() error {
	for _, r := range a.relocs {
		target, ok := a.labels[r.Target]
		if !ok {
			return fmt.Errorf("jit: unresolved branch target %q", r.Target)
		}
		offset := target - r.Offset
		if offset%4 != 0 {
			return fmt.Errorf("jit: branch target not word aligned")
		}
		word := offset / 4
		instr := uint32(a.code[r.Offset]) | uint32(a.code[r.Offset+1])<<8 |
			uint32(a.code[r.Offset+2])<<16 | uint32(a.code[r.Offset+3])<<24
		switch r.Kind {
		case 0:
			instr = (instr & 0xFC000000) | (uint32(word) & 0x03FFFFFF)
		case 1:
			instr = (instr & 0xFF00001F) | ((uint32(word) & 0x7FFFF) << 5)
		}
		a.code[r.Offset] = byte(instr)
		a.code[r.Offset+1] = byte(instr >> 8)
		a.code[r.Offset+2] = byte(instr >> 16)
		a.code[r.Offset+3] = byte(instr >> 24)
	}
	return nil
}

func regNum(alloc *FuncAlloc, t ir.Temp) int {
	a, ok := alloc.Temps[t.ID]
	if !ok || a.Spilled || len(a.Reg) == 0 {
		return 9 // scratch
	}
	n := 0
	for _, c := range a.Reg[1:] {
		n = n*10 + int(c-'0')
	}
	return n
}

func constInt(imm interface{}) (int64, bool) {
	switch v := imm.(type) {
	case int32:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

func condFor(op ir.Op) uint32 {
	switch op {
	case ir.OpCmpEq:
		return 0x0
	case ir.OpCmpNe:
		return 0x1
	case ir.OpCmpLt:
		return 0xB
	case ir.OpCmpLe:
		return 0xD
	case ir.OpCmpGt:
		return 0xC
	case ir.OpCmpGe:
		return 0xA
	default:
		return 0x0
	}
}

// --- raw ARM64 instruction encoders (64-bit X registers) ---

func movzImm(rd int, imm16 uint16) uint32 {
	return 0xD2800000 | (uint32(imm16) << 5) | uint32(rd)
}
func movkImm(rd int, imm16 uint16, shift uint32) uint32 {
	hw := shift / 16
	return 0xF2800000 | (hw << 21) | (uint32(imm16) << 5) | uint32(rd)
}
func movReg(rd, rm int) uint32 {
	return 0xAA0003E0 | (uint32(rm) << 16) | uint32(rd)
}
func movRegSP(rd, rn int) uint32 {
	// mov xd, sp  (encoded as `add xd, xn, #0`)
	return 0x91000000 | (uint32(rn) << 5) | uint32(rd)
}
func addSubReg(base uint32, rd, rn, rm int) uint32 {
	return (base << 24) | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd)
}
func mulReg(rd, rn, rm int) uint32 {
	return 0x9B007C00 | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd)
}
func divReg(rd, rn, rm int, signed bool) uint32 {
	op := uint32(0x9AC00C00)
	if !signed {
		op = 0x9AC00800
	}
	return op | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd)
}
func cmpReg(rn, rm int) uint32 {
	return 0xEB00001F | (uint32(rm) << 16) | (uint32(rn) << 5)
}
func csetReg(rd int, cond uint32) uint32 {
	invCond := cond ^ 1
	return 0x9A9F07E0 | (invCond << 12) | uint32(rd)
}
func cbnz(rt int, imm19 uint32) uint32 {
	return 0xB5000000 | ((imm19 & 0x7FFFF) << 5) | uint32(rt)
}
func stpPre(rt1, rt2, rn int, imm int32) uint32 {
	return stp(rt1, rt2, rn, imm, true)
}
func ldpPost(rt1, rt2, rn int, imm int32) uint32 {
	return stp(rt1, rt2, rn, imm, false) | (1 << 22) // load bit
}
func stp(rt1, rt2, rn int, imm int32, pre bool) uint32 {
	imm7 := uint32((imm/8)&0x7F)
	flags := uint32(0b11) << 23 // pre-index variant
	if !pre {
		flags = uint32(0b01) << 23 // post-index variant
	}
	return 0xA8000000 | flags | (imm7 << 15) | (uint32(rt2) << 10) | (uint32(rn) << 5) | uint32(rt1)
}
