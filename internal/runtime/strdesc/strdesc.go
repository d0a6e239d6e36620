// Package strdesc implements FasterBASIC's string-descriptor contract
// (spec.md §3/§4.7): refcounted, immutable-once-constructed strings
// backed by UTF-32 code-point storage, with copy-on-write sharing for
// short-lived concatenations when a descriptor's refcount is 1.
package strdesc

import "strings"

// Desc is a string descriptor. Refcount starts at 1 on construction;
// string_retain/string_release adjust it, and the storage is only freed
// (returned to the GC, in this Go reference model) once it reaches zero.
type Desc struct {
	refcount int32
	runes    []rune // UTF-32 storage
	cap      int
}

// NewAscii builds a descriptor from a Go string, matching the runtime
// symbol string_new_ascii(cstr) the IR lowerer calls for string literals.
func NewAscii(s string) *Desc {
	r := []rune(s)
	return &Desc{refcount: 1, runes: r, cap: len(r)}
}

func (d *Desc) Retain() *Desc {
	d.refcount++
	return d
}

// Release decrements the refcount; returns true when storage was freed.
// SAMM's scope pop calls this for every root it owns (spec.md §3
// "String refcount reaches zero exactly when its last owning scope pops
// and no RETAIN was issued").
func (d *Desc) Release() bool {
	d.refcount--
	if d.refcount <= 0 {
		d.runes = nil
		return true
	}
	return false
}

func (d *Desc) Refcount() int32 { return d.refcount }

func (d *Desc) Length() int32 { return int32(len(d.runes)) }

func (d *Desc) String() string { return string(d.runes) }

// Concat builds a new descriptor, sharing a's storage in place when a's
// refcount is 1 and its spare capacity covers b (copy-on-write append);
// otherwise allocates fresh storage. Per spec.md §3: "Short-lived
// concatenations may share storage via copy-on-write if refcount = 1."
func Concat(a, b *Desc) *Desc {
	if a.refcount == 1 && cap(a.runes) >= len(a.runes)+len(b.runes) {
		merged := append(a.runes, b.runes...)
		return &Desc{refcount: 1, runes: merged, cap: cap(merged)}
	}
	out := make([]rune, 0, len(a.runes)+len(b.runes))
	out = append(out, a.runes...)
	out = append(out, b.runes...)
	return &Desc{refcount: 1, runes: out, cap: cap(out)}
}

// Slice implements s$(lo TO hi) with BASIC's 1-based, inclusive indexing
// and the open-ended forms s$(lo TO) / s$(TO hi) (spec.md §6): lo below 1
// is clamped to 1 and hi past the end to the length, so an open lower
// bound is passed as any lo <= 1 and an open upper bound as any hi >= the
// length; hi of 0 yields the empty string.
func Slice(s *Desc, lo, hi int32) *Desc {
	n := int32(len(s.runes))
	if lo < 1 {
		lo = 1
	}
	if hi > n {
		hi = n
	}
	if lo > hi {
		return NewAscii("")
	}
	return NewAscii(string(s.runes[lo-1 : hi]))
}

// Compare implements string_compare: lexicographic ordering over the
// UTF-32 code points, returning <0, 0, >0 — the primitive SELECT CASE's
// lexicographic string comparability (sema.Analyzer.comparable) and the
// IR's relational-operator lowering for STRING operands both reduce to.
func Compare(a, b *Desc) int32 {
	return int32(strings.Compare(string(a.runes), string(b.runes)))
}

func ToUTF8(d *Desc) string { return string(d.runes) }
