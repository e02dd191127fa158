package streamview

import "github.com/dahliamalkhi/corfu-go/address"

// CheckpointSuccess records the address range of the first complete
// checkpoint record sequence discovered during a backward walk. Entries
// strictly below StartAddr are subsumed and never scanned on initial
// replay (spec §4.D, "checkpoint filter").
type CheckpointSuccess struct {
	ID         address.StreamID
	StartAddr  address.GlobalAddress
	EndAddr    address.GlobalAddress
	NumEntries int
	Bytes      int
}

// checkpointTracker holds the in-progress state of a checkpoint record
// sequence encountered mid-walk, before its START record (and therefore
// completeness) has been confirmed.
type checkpointTracker struct {
	id       address.StreamID
	tracking bool
	endAddr  address.GlobalAddress
	snapshot address.GlobalAddress
	entries  int
	bytes    int
}

// StreamContext is the per-stream mutable state of a QueuedStreamView:
// iteration pointers and the three address queues of spec §3.
type StreamContext struct {
	StreamID address.StreamID

	// GlobalPointer is the address of the most recently yielded entry, or
	// address.NeverRead before any entry has been produced.
	GlobalPointer address.GlobalAddress
	// MinResolution / MaxResolution bound the range over which
	// resolvedQueue is known to be complete.
	MinResolution address.GlobalAddress
	MaxResolution address.GlobalAddress

	ReadQueue     addressSet
	ReadCpQueue   addressSet
	ResolvedQueue addressSet

	CheckpointSuccess *CheckpointSuccess
	cpTracker         checkpointTracker

	// Stats accumulates lightweight counters for observability of the
	// stream-view subsystem itself (SPEC_FULL "Supplemented" additions).
	Stats Stats
}

// Stats counts notable events of a stream view's lifetime.
type Stats struct {
	AddressesResolved int
	BackpointerHops   int
	SingleStepScans   int
	HoleFills         int
}

// newStreamContext returns a freshly reset StreamContext for sid.
func newStreamContext(sid address.StreamID) *StreamContext {
	var ctx = &StreamContext{StreamID: sid}
	ctx.reset()
	return ctx
}

// reset clears queues and pointers, as on first access or explicit reset.
func (ctx *StreamContext) reset() {
	ctx.GlobalPointer = address.NeverRead
	ctx.MinResolution = address.NonAddress
	ctx.MaxResolution = address.NonAddress
	ctx.ReadQueue.Clear()
	ctx.ReadCpQueue.Clear()
	ctx.ResolvedQueue.Clear()
	ctx.CheckpointSuccess = nil
	ctx.cpTracker = checkpointTracker{}
}

// checkpointSuccessStartAddr returns the start address of the confirmed
// checkpoint, or address.NonAddress if none has been found yet.
func (ctx *StreamContext) checkpointSuccessStartAddr() address.GlobalAddress {
	if ctx.CheckpointSuccess == nil {
		return address.NonAddress
	}
	return ctx.CheckpointSuccess.StartAddr
}

// stopAddress is the address at or below which a backward walk must
// terminate, to avoid redundant re-scanning of already-resolved or
// checkpoint-subsumed history.
func (ctx *StreamContext) stopAddress() address.GlobalAddress {
	return address.Max(ctx.GlobalPointer, ctx.checkpointSuccessStartAddr())
}
