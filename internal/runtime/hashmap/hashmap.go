// Package hashmap implements FasterBASIC's HASHMAP runtime (spec.md
// §4.7/§9): open addressing, power-of-two capacity, 70% load-factor
// growth, and — the one hard correctness requirement the spec calls out
// by name — unsigned remainder for slot indexing. A signed Go '%' on a
// hash value produced by fnv32 and reinterpreted as int32 goes negative
// past 2^31; this package works in uint32 throughout so that case cannot
// arise (spec.md §9's test_hashmap_two_maps_multiple_inserts regression).
package hashmap

import (
	"hash/fnv"

	"fasterbasic/internal/runtime/samm"
)

const loadFactorNumerator = 7
const loadFactorDenominator = 10

type entry struct {
	key      string
	value    interface{}
	occupied bool
	tombstone bool
}

// Map is one HASHMAP value. Capacity is always a power of two so slot
// indexing can use urem against it directly (spec.md §4.7).
type Map struct {
	slots    []entry
	count    int
	capacity uint32
}

func New() *Map {
	m := &Map{capacity: 16}
	m.slots = make([]entry, m.capacity)
	return m
}

func hash(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// slotFor finds key's existing slot, or the first open slot on its probe
// sequence if absent. Index arithmetic is entirely uint32: hash(key) is
// already unsigned, and capacity is a uint32, so `%` here is an unsigned
// remainder — there is no intermediate signed value to go negative on a
// hash above 2^31 (spec.md §9).
func (m *Map) slotFor(key string) (idx uint32, found bool) {
	h := hash(key)
	start := h % m.capacity
	firstTombstone := uint32(0)
	haveTombstone := false
	for probe := uint32(0); probe < m.capacity; probe++ {
		i := (start + probe) % m.capacity
		s := &m.slots[i]
		if !s.occupied {
			if s.tombstone && !haveTombstone {
				firstTombstone = i
				haveTombstone = true
			}
			if !s.tombstone {
				if haveTombstone {
					return firstTombstone, false
				}
				return i, false
			}
			continue
		}
		if s.key == key {
			return i, true
		}
	}
	return start, false // unreachable while load factor is maintained below 1
}

func (m *Map) Put(key string, value interface{}) {
	if float64(m.count+1) > float64(m.capacity)*loadFactorNumerator/loadFactorDenominator {
		m.grow()
	}
	idx, found := m.slotFor(key)
	if !found {
		m.count++
	}
	m.slots[idx] = entry{key: key, value: value, occupied: true}
}

func (m *Map) Get(key string) (interface{}, bool) {
	idx, found := m.slotFor(key)
	if !found {
		return nil, false
	}
	return m.slots[idx].value, true
}

func (m *Map) HasKey(key string) bool {
	_, found := m.slotFor(key)
	return found
}

func (m *Map) Remove(key string) bool {
	idx, found := m.slotFor(key)
	if !found {
		return false
	}
	m.slots[idx] = entry{tombstone: true}
	m.count--
	return true
}

func (m *Map) Size() int { return m.count }

func (m *Map) Clear() {
	m.capacity = 16
	m.slots = make([]entry, m.capacity)
	m.count = 0
}

func (m *Map) grow() {
	old := m.slots
	m.capacity *= 2
	m.slots = make([]entry, m.capacity)
	m.count = 0
	for _, e := range old {
		if e.occupied {
			m.Put(e.key, e.value)
		}
	}
}

// Retain / Release satisfy samm.Root: a HASHMAP is a SAMM heap root whose
// storage this Go reference model just garbage-collects normally once
// unreferenced, so Release is a no-op returning true — the pair exists so
// samm.Machine.Track/Retain have something uniform to call across the
// root kinds that implement samm.Root (hashmap, list).
func (m *Map) Retain() samm.Root { return m }
func (m *Map) Release() bool     { return true }
