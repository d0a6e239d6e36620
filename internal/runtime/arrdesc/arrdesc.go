// Package arrdesc implements the array-descriptor contract of spec.md §3:
// a fixed 56-byte layout shared between the ARM64 emitter and the runtime.
// The emitter does not inline these offsets: internal/ir's OpArrayElemAddr
// becomes a call to the runtime's array_elem_addr helper in internal/arm64.
// This package is a reference model used by its own test suite (no other
// package imports it) to validate the layout without hand-decoding raw
// bytes everywhere.
package arrdesc

import "unsafe"

// ElementType mirrors the enum code stored at descriptor offset 32
// (types.Kind.ElementTypeCode).
type ElementType int32

const (
	ElemByte   ElementType = 1
	ElemShort  ElementType = 2
	ElemInt32  ElementType = 3
	ElemInt64  ElementType = 4
	ElemSingle ElementType = 5
	ElemDouble ElementType = 6
	ElemString ElementType = 7
	ElemUDT    ElementType = 8
)

// Flag bits stored at offset 52.
const (
	FlagPreserve      int32 = 1 << 0
	FlagStringOwning  int32 = 1 << 1
)

// Descriptor's field order and widths are the ABI: offset 0 is Data,
// offset 8 is Length, and so on through offset 52 (Flags). Do not reorder
// or resize a field without updating internal/arm64's emitter in lockstep
// (spec.md §3 "any mismatch is a fatal bug class").
type Descriptor struct {
	Data        unsafe.Pointer // 0
	Length      int64          // 8
	LowerBound1 int32          // 16
	UpperBound1 int32          // 20
	LowerBound2 int32          // 24
	UpperBound2 int32          // 28
	ElementType int32          // 32
	pad1        int32          // 36
	ElementSize int32          // 40
	pad2        int32          // 44
	Dimensions  int32          // 48
	Flags       int32          // 52

	backing []byte // keeps Data's allocation alive; not part of the ABI
}

// Size is asserted in tests against unsafe.Sizeof(Descriptor{}) minus the
// non-ABI backing slice header; Go's struct layout for the ABI fields
// before that slice on arm64/amd64 produces 56 bytes with no implicit
// padding, so the assertion is a
// canary against a future field reordering rather than a live computation
// here.
const Size = 56

// Alloc builds a descriptor for a rank-1 or rank-2 array, sized per
// spec.md §8's array-descriptor invariant: length = product of
// per-dimension extents, elementSize/elementType/dimensions recorded
// verbatim.
func Alloc(dims int32, lb1, ub1, lb2, ub2, elemSize int32, elemType ElementType) *Descriptor {
	n1 := int64(ub1-lb1) + 1
	n2 := int64(1)
	if dims == 2 {
		n2 = int64(ub2-lb2) + 1
	}
	length := n1 * n2
	backing := make([]byte, length*int64(elemSize))
	d := &Descriptor{
		Length:      length,
		LowerBound1: lb1, UpperBound1: ub1,
		LowerBound2: lb2, UpperBound2: ub2,
		ElementType: int32(elemType),
		ElementSize: elemSize,
		Dimensions:  dims,
		backing:     backing,
	}
	if len(backing) > 0 {
		d.Data = unsafe.Pointer(&backing[0])
	}
	return d
}

// LinearIndex computes the flat element offset for A(i) or A(i,j), the
// same arithmetic internal/ir.OpArrayElemAddr compiles to a multiply-add
// against ElementSize (spec.md §4.4).
func (d *Descriptor) LinearIndex(i, j int32) int64 {
	i0 := int64(i - d.LowerBound1)
	if d.Dimensions == 1 {
		return i0
	}
	n2 := int64(d.UpperBound2-d.LowerBound2) + 1
	j0 := int64(j - d.LowerBound2)
	return i0*n2 + j0
}

// InBounds reports whether (i,j) is addressable. The ARM64 emitter does
// not emit this check, and OPTION BOUNDS_CHECK has no effect on emitted
// code.
func (d *Descriptor) InBounds(i, j int32) bool {
	if i < d.LowerBound1 || i > d.UpperBound1 {
		return false
	}
	if d.Dimensions == 2 && (j < d.LowerBound2 || j > d.UpperBound2) {
		return false
	}
	return true
}

// Elem returns the byte slice backing element (i,j), for reference-model
// load/store; the real ARM64 runtime does this with ldr/str against
// Data+LinearIndex*ElementSize directly.
func (d *Descriptor) Elem(i, j int32) []byte {
	off := d.LinearIndex(i, j) * int64(d.ElementSize)
	return d.backing[off : off+int64(d.ElementSize)]
}

// Erase releases string elements (if the array holds STRING) via release,
// then drops the backing storage and zeroes Data and Length (bounds,
// element type/size, rank and flags are kept) so a subsequent REDIM can
// reuse the descriptor, matching the
// array_descriptor_erase contract of spec.md §4.7.
func (d *Descriptor) Erase(release func(elem []byte)) {
	if d.ElementType == int32(ElemString) && release != nil {
		n1 := int64(d.UpperBound1-d.LowerBound1) + 1
		if d.Dimensions == 1 {
			for i := int64(0); i < n1; i++ {
				off := i * int64(d.ElementSize)
				release(d.backing[off : off+int64(d.ElementSize)])
			}
		} else {
			for idx := int64(0); idx < d.Length; idx++ {
				off := idx * int64(d.ElementSize)
				release(d.backing[off : off+int64(d.ElementSize)])
			}
		}
	}
	d.backing = nil
	d.Data = nil
	d.Length = 0
}

// Redim grows or shrinks a rank-1 array's upper bound. With preserve set,
// existing elements up to min(oldUb, newUb) survive; new slots beyond the
// old extent are zeroed. Only the first dimension is handled: the parser
// accepts REDIM with two bounds, but this method takes a single upper
// bound and does not resize a rank-2 descriptor's second dimension.
func (d *Descriptor) Redim(newUb int32, preserve bool) {
	oldBacking := d.backing
	oldUb := d.UpperBound1
	n := int64(newUb-d.LowerBound1) + 1
	backing := make([]byte, n*int64(d.ElementSize))
	if preserve && len(oldBacking) > 0 {
		keepUb := oldUb
		if newUb < keepUb {
			keepUb = newUb
		}
		keepN := int64(keepUb-d.LowerBound1) + 1
		if keepN > 0 {
			copy(backing, oldBacking[:keepN*int64(d.ElementSize)])
		}
		d.Flags |= FlagPreserve
	}
	d.backing = backing
	d.UpperBound1 = newUb
	d.Length = n
	if len(backing) > 0 {
		d.Data = unsafe.Pointer(&backing[0])
	} else {
		d.Data = nil
	}
}
