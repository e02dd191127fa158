package streamview

import "github.com/dahliamalkhi/corfu-go/logunit"

// filterDecision is the result of applying the checkpoint filter to a
// candidate entry during a backward fill walk.
type filterDecision int

const (
	// decInclude pushes the entry into the appropriate queue and
	// continues the walk.
	decInclude filterDecision = iota
	// decIncludeStop pushes the entry and terminates the walk.
	decIncludeStop
	// decExclude skips the entry and continues the walk.
	decExclude
	// decExcludeStop skips the entry and terminates the walk.
	decExcludeStop
)

// applyCheckpointFilter implements spec §4.D's checkpoint filter: the
// first complete CHECKPOINT record sequence (START + ENTRIES + END with
// matching ID) discovered walking backward from the tail subsumes all
// stream history below its START address. While a sequence is being
// discovered, its CHECKPOINT records are routed to the checkpoint queue;
// everything else goes to the regular read queue.
func (ctx *StreamContext) applyCheckpointFilter(e *logunit.Entry) (filterDecision, bool /* isCheckpointQueue */) {
	if ctx.CheckpointSuccess != nil {
		// A complete checkpoint has already been found; the walk's
		// stopAddress now equals its StartAddr, so we won't be invoked
		// again below that point. Anything still offered here is a
		// regular entry above the checkpoint.
		return decInclude, false
	}

	if e.Type != logunit.Checkpoint {
		return decInclude, false
	}

	var t = &ctx.cpTracker

	switch {
	case !t.tracking:
		if e.CheckpointOf == logunit.CheckpointEnd {
			t.tracking = true
			t.id = e.CheckpointID
			t.endAddr = e.Address
			t.snapshot = e.SnapshotAddress
			t.entries = 1
			t.bytes = e.Bytes
			return decInclude, true
		}
		// A START or CONTINUATION encountered before any END: an
		// incomplete or truncated sequence. It cannot subsume anything
		// on its own, so it's excluded from consideration as checkpoint
		// state, but is still handed to the caller as ordinary stream
		// content (ordinary queue) since it IS a real log entry of this
		// stream.
		return decInclude, false

	case t.id != e.CheckpointID:
		// A different checkpoint series interleaved with the one we're
		// tracking; not part of our candidate sequence.
		return decInclude, false

	case e.CheckpointOf == logunit.CheckpointStart:
		t.entries++
		t.bytes += e.Bytes
		ctx.CheckpointSuccess = &CheckpointSuccess{
			ID:         t.id,
			StartAddr:  e.Address,
			EndAddr:    t.endAddr,
			NumEntries: t.entries,
			Bytes:      t.bytes,
		}
		return decInclude, true

	default: // CheckpointContinuation (or a repeated End, tolerated).
		t.entries++
		t.bytes += e.Bytes
		return decInclude, true
	}
}
