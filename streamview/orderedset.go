package streamview

import (
	"sort"

	"github.com/dahliamalkhi/corfu-go/address"
)

// addressSet is a sorted set of global addresses, standing in for the
// TreeSet<Long> used by the source implementation for the resolved/read/
// checkpoint queues. Backed by a sorted slice: stream views hold at most a
// few thousand outstanding addresses at a time, so slice insertion cost is
// not a concern in practice and keeps the reference implementation simple
// to reason about.
type addressSet struct {
	items []address.GlobalAddress
}

func (s *addressSet) Len() int { return len(s.items) }

func (s *addressSet) Contains(a address.GlobalAddress) bool {
	var i = sort.Search(len(s.items), func(i int) bool { return s.items[i] >= a })
	return i < len(s.items) && s.items[i] == a
}

// Add inserts a, maintaining sort order. No-op if already present.
func (s *addressSet) Add(a address.GlobalAddress) {
	var i = sort.Search(len(s.items), func(i int) bool { return s.items[i] >= a })
	if i < len(s.items) && s.items[i] == a {
		return
	}
	s.items = append(s.items, 0)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = a
}

// Remove deletes a if present.
func (s *addressSet) Remove(a address.GlobalAddress) {
	var i = sort.Search(len(s.items), func(i int) bool { return s.items[i] >= a })
	if i < len(s.items) && s.items[i] == a {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
}

// First returns the smallest element and true, or (0, false) if empty.
func (s *addressSet) First() (address.GlobalAddress, bool) {
	if len(s.items) == 0 {
		return 0, false
	}
	return s.items[0], true
}

// PopFirst removes and returns the smallest element.
func (s *addressSet) PopFirst() (address.GlobalAddress, bool) {
	var a, ok = s.First()
	if ok {
		s.items = s.items[1:]
	}
	return a, ok
}

// Higher returns the smallest element strictly greater than a.
func (s *addressSet) Higher(a address.GlobalAddress) (address.GlobalAddress, bool) {
	var i = sort.Search(len(s.items), func(i int) bool { return s.items[i] > a })
	if i < len(s.items) {
		return s.items[i], true
	}
	return 0, false
}

// Lower returns the largest element strictly less than a.
func (s *addressSet) Lower(a address.GlobalAddress) (address.GlobalAddress, bool) {
	var i = sort.Search(len(s.items), func(i int) bool { return s.items[i] >= a })
	if i > 0 {
		return s.items[i-1], true
	}
	return 0, false
}

// TailSetRemove removes and returns every element >= a, ascending.
func (s *addressSet) TailSetRemove(a address.GlobalAddress) []address.GlobalAddress {
	var i = sort.Search(len(s.items), func(i int) bool { return s.items[i] >= a })
	var tail = append([]address.GlobalAddress(nil), s.items[i:]...)
	s.items = s.items[:i]
	return tail
}

// RemoveBelow discards every element strictly less than a.
func (s *addressSet) RemoveBelow(a address.GlobalAddress) {
	var i = sort.Search(len(s.items), func(i int) bool { return s.items[i] >= a })
	s.items = s.items[i:]
}

// Clear empties the set.
func (s *addressSet) Clear() { s.items = s.items[:0] }

// Slice returns a defensive copy of the set's contents in ascending order.
func (s *addressSet) Slice() []address.GlobalAddress {
	return append([]address.GlobalAddress(nil), s.items...)
}
