package streamview

import (
	"github.com/dahliamalkhi/corfu-go/address"
	"github.com/dahliamalkhi/corfu-go/logunit"
)

// AddressDiscoveryStrategy parameterizes how fillReadQueue steps backward
// from one candidate address to the next. This recasts the source's
// AbstractQueuedStreamView / BackpointerStreamView inheritance hierarchy
// (spec §9 design note) as a single algorithm parameterized over one
// interface method, rather than a subclass.
type AddressDiscoveryStrategy interface {
	// Step returns the next address to examine walking backward from
	// current, given the entry read at current (which may be nil if
	// current was Empty/hole-filled). usedBackpointer reports whether the
	// step followed a backpointer (for stats/logging) as opposed to a
	// single-step decrement.
	Step(sid address.StreamID, current address.GlobalAddress, e *logunit.Entry) (next address.GlobalAddress, usedBackpointer bool)
}

// backpointerStrategy follows per-stream backpointers when present,
// falling back to a single-step linear scan otherwise (eg across holes, or
// entries from other streams that don't carry our backpointer).
type backpointerStrategy struct{}

func (backpointerStrategy) Step(sid address.StreamID, current address.GlobalAddress, e *logunit.Entry) (address.GlobalAddress, bool) {
	if e != nil {
		if bp, ok := e.BackpointerFor(sid); ok {
			return bp, true
		}
	}
	return current - 1, false
}

// linearStrategy always single-steps, regardless of any backpointer
// present. Used when backpointers are disabled; spec §8 requires its
// output be identical to backpointer mode, merely slower.
type linearStrategy struct{}

func (linearStrategy) Step(_ address.StreamID, current address.GlobalAddress, _ *logunit.Entry) (address.GlobalAddress, bool) {
	return current - 1, false
}
