// Package list implements FasterBASIC's LIST runtime (spec.md §4.7):
// singly-linked atoms tagged with a variant kind, a header carrying
// {head, tail, length, element-type-flag}, and SAMM-aware free functions
// that release exactly one node without touching its neighbours.
package list

import "fasterbasic/internal/runtime/samm"

// AtomKind tags the variant a List atom carries.
type AtomKind int

const (
	AtomInt AtomKind = iota
	AtomFloat
	AtomString
	AtomList
	AtomAny
)

// Atom is one singly-linked node.
type Atom struct {
	Kind  AtomKind
	Value interface{}
	next  *Atom
}

// List is the header: head/tail pointers, length, and the declared
// element-type flag (Any when untyped, per spec.md §4.7).
type List struct {
	head, tail *Atom
	length     int
	elemType   AtomKind
	typed      bool
}

func Create() *List                     { return &List{elemType: AtomAny} }
func CreateTyped(k AtomKind) *List      { return &List{elemType: k, typed: true} }

func (l *List) Len() int { return l.length }

func newAtom(k AtomKind, v interface{}) *Atom { return &Atom{Kind: k, Value: v} }

func (l *List) Append(k AtomKind, v interface{}) {
	a := newAtom(k, v)
	if l.tail == nil {
		l.head, l.tail = a, a
	} else {
		l.tail.next = a
		l.tail = a
	}
	l.length++
}

func (l *List) Prepend(k AtomKind, v interface{}) {
	a := newAtom(k, v)
	a.next = l.head
	l.head = a
	if l.tail == nil {
		l.tail = a
	}
	l.length++
}

// Insert places a new atom at position idx (0-based), shifting the rest
// right. Insert at length appends.
func (l *List) Insert(idx int, k AtomKind, v interface{}) {
	if idx <= 0 {
		l.Prepend(k, v)
		return
	}
	if idx >= l.length {
		l.Append(k, v)
		return
	}
	prev := l.head
	for i := 0; i < idx-1; i++ {
		prev = prev.next
	}
	a := newAtom(k, v)
	a.next = prev.next
	prev.next = a
	l.length++
}

func (l *List) Shift() (*Atom, bool) {
	if l.head == nil {
		return nil, false
	}
	a := l.head
	l.head = a.next
	if l.head == nil {
		l.tail = nil
	}
	l.length--
	return a, true
}

func (l *List) Pop() (*Atom, bool) {
	if l.head == nil {
		return nil, false
	}
	if l.head == l.tail {
		a := l.head
		l.head, l.tail = nil, nil
		l.length--
		return a, true
	}
	prev := l.head
	for prev.next != l.tail {
		prev = prev.next
	}
	a := l.tail
	prev.next = nil
	l.tail = prev
	l.length--
	return a, true
}

func (l *List) Remove(idx int) bool {
	if idx < 0 || idx >= l.length {
		return false
	}
	if idx == 0 {
		_, ok := l.Shift()
		return ok
	}
	prev := l.head
	for i := 0; i < idx-1; i++ {
		prev = prev.next
	}
	target := prev.next
	prev.next = target.next
	if target == l.tail {
		l.tail = prev
	}
	l.length--
	return true
}

func (l *List) Clear() { l.head, l.tail, l.length = nil, nil, 0 }

func (l *List) Get(idx int) (*Atom, bool) {
	if idx < 0 || idx >= l.length {
		return nil, false
	}
	a := l.head
	for i := 0; i < idx; i++ {
		a = a.next
	}
	return a, true
}

func (l *List) Head() (*Atom, bool) { return l.head, l.head != nil }

// Iterator walks the list front to back without mutating it.
type Iterator struct{ cur *Atom }

func (l *List) IterBegin() *Iterator { return &Iterator{cur: l.head} }

func (it *Iterator) Next() (*Atom, bool) {
	if it.cur == nil {
		return nil, false
	}
	a := it.cur
	it.cur = it.cur.next
	return a, true
}

// Copy performs a deep copy: atoms are duplicated, and nested LIST-kind
// atoms are copied recursively.
func (l *List) Copy() *List {
	out := &List{elemType: l.elemType, typed: l.typed}
	for a := l.head; a != nil; a = a.next {
		v := a.Value
		if a.Kind == AtomList {
			if nested, ok := a.Value.(*List); ok {
				v = nested.Copy()
			}
		}
		out.Append(a.Kind, v)
	}
	return out
}

// Rest returns a new list containing every atom after the head.
func (l *List) Rest() *List {
	out := &List{elemType: l.elemType, typed: l.typed}
	if l.head == nil {
		return out
	}
	for a := l.head.next; a != nil; a = a.next {
		out.Append(a.Kind, a.Value)
	}
	return out
}

func (l *List) Reverse() *List {
	out := &List{elemType: l.elemType, typed: l.typed}
	for a := l.head; a != nil; a = a.next {
		out.Prepend(a.Kind, a.Value)
	}
	return out
}

func (l *List) Contains(eq func(*Atom) bool) bool {
	_, ok := l.indexOf(eq)
	return ok
}

func (l *List) IndexOf(eq func(*Atom) bool) int {
	idx, ok := l.indexOf(eq)
	if !ok {
		return -1
	}
	return idx
}

func (l *List) indexOf(eq func(*Atom) bool) (int, bool) {
	i := 0
	for a := l.head; a != nil; a = a.next {
		if eq(a) {
			return i, true
		}
		i++
	}
	return 0, false
}

// Join concatenates other onto the end of l, returning a new list (both
// inputs are left untouched, matching the immutable-looking value
// semantics BASIC's LIST surface presents even though storage is
// mutable under the hood).
func (l *List) Join(other *List) *List {
	out := l.Copy()
	for a := other.head; a != nil; a = a.next {
		out.Append(a.Kind, a.Value)
	}
	return out
}

// FreeFromSAMM releases the header alone, per spec.md §4.7
// "list_free_from_samm" — used when a list value's frame pops but a
// RETAIN elsewhere still owns individual atoms reachable through another
// path is not possible in this closed implementation (atoms are not
// independently shared), so this simply drops the header's references.
func (l *List) FreeFromSAMM() { l.head, l.tail, l.length = nil, nil, 0 }

// AtomFreeFromSAMM releases a single detached atom (e.g. one popped via
// Shift/Pop/Remove whose value itself needs releasing) without touching
// its former neighbours, per spec.md §4.7's per-atom SAMM cleanup.
func AtomFreeFromSAMM(a *Atom) {
	if a == nil {
		return
	}
	if r, ok := a.Value.(samm.Root); ok {
		r.Release()
	}
	a.Value = nil
	a.next = nil
}

// Retain / Release satisfy samm.Root.
func (l *List) Retain() samm.Root { return l }
func (l *List) Release() bool     { l.FreeFromSAMM(); return true }
