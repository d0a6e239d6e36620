package list

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendPrependOrder(t *testing.T) {
	l := Create()
	l.Append(AtomInt, 2)
	l.Append(AtomInt, 3)
	l.Prepend(AtomInt, 1)
	var got []int
	for it := l.IterBegin(); ; {
		a, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, a.Value.(int))
	}
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestShiftAndPop(t *testing.T) {
	l := Create()
	l.Append(AtomInt, 1)
	l.Append(AtomInt, 2)
	l.Append(AtomInt, 3)
	head, _ := l.Shift()
	require.Equal(t, 1, head.Value)
	tail, _ := l.Pop()
	require.Equal(t, 3, tail.Value)
	require.Equal(t, 1, l.Len())
}

func TestInsertAndRemove(t *testing.T) {
	l := Create()
	l.Append(AtomInt, 1)
	l.Append(AtomInt, 3)
	l.Insert(1, AtomInt, 2)
	got, _ := l.Get(1)
	require.Equal(t, 2, got.Value)
	require.True(t, l.Remove(1))
	require.Equal(t, 2, l.Len())
}

func TestCopyIsDeepForNestedLists(t *testing.T) {
	inner := Create()
	inner.Append(AtomInt, 99)
	outer := Create()
	outer.Append(AtomList, inner)
	dup := outer.Copy()
	nestedDup, _ := dup.Get(0)
	nestedDup.Value.(*List).Append(AtomInt, 100)
	require.Equal(t, 1, inner.Len()) // original untouched
}

func TestReverse(t *testing.T) {
	l := Create()
	l.Append(AtomInt, 1)
	l.Append(AtomInt, 2)
	l.Append(AtomInt, 3)
	r := l.Reverse()
	first, _ := r.Get(0)
	require.Equal(t, 3, first.Value)
}

func TestContainsAndIndexOf(t *testing.T) {
	l := Create()
	l.Append(AtomInt, 10)
	l.Append(AtomInt, 20)
	eq := func(a *Atom) bool { return a.Value.(int) == 20 }
	require.True(t, l.Contains(eq))
	require.Equal(t, 1, l.IndexOf(eq))
}

func TestJoinLeavesOperandsUnmodified(t *testing.T) {
	a := Create()
	a.Append(AtomInt, 1)
	b := Create()
	b.Append(AtomInt, 2)
	joined := a.Join(b)
	require.Equal(t, 2, joined.Len())
	require.Equal(t, 1, a.Len())
	require.Equal(t, 1, b.Len())
}
