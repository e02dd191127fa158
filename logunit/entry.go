package logunit

import (
	"github.com/dahliamalkhi/corfu-go/address"
)

// DataType tags the kind of content held at a log address.
type DataType int

const (
	// Data is a regular, application-written entry.
	Data DataType = iota
	// Hole is an address that was explicitly filled to preserve ordering
	// without ever receiving a client write.
	Hole
	// Checkpoint is one record of a checkpoint START/ENTRIES/END sequence.
	Checkpoint
	// Trimmed marks an address whose contents have been garbage collected.
	Trimmed
	// Empty marks an address the log unit has never heard of. Empty is
	// synthesized locally by Read and never persisted.
	Empty
)

func (t DataType) String() string {
	switch t {
	case Data:
		return "DATA"
	case Hole:
		return "HOLE"
	case Checkpoint:
		return "CHECKPOINT"
	case Trimmed:
		return "TRIMMED"
	case Empty:
		return "EMPTY"
	default:
		return "UNKNOWN"
	}
}

// CheckpointKind distinguishes the position of a Checkpoint record within
// its START/ENTRIES/END sequence.
type CheckpointKind int

const (
	CheckpointNone CheckpointKind = iota
	CheckpointStart
	CheckpointContinuation
	CheckpointEnd
)

// Entry is an immutable record at some GlobalAddress. Once written, every
// field is fixed: a Read of the same address always observes the same
// Entry (or the same Trimmed/Empty status).
type Entry struct {
	Address GlobalAddress
	Type    DataType

	// Streams the entry belongs to.
	Streams map[address.StreamID]struct{}
	// Backpointer to the previous entry of each stream the entry belongs
	// to, or address.NonExist if this is that stream's first entry.
	Backpointer address.BackpointerMap

	// Payload is an opaque application value; interpretation is the
	// concern of object materialization, out of scope here.
	Payload []byte
	// Bytes is a size estimate of Payload, cached for batch-read planning.
	Bytes int

	// CheckpointID, when Type == Checkpoint, identifies the checkpoint
	// series this record belongs to.
	CheckpointID address.StreamID
	CheckpointOf CheckpointKind
	// SnapshotAddress, set on a CheckpointEnd record, is the address up to
	// and including which the checkpoint subsumes stream history.
	SnapshotAddress GlobalAddress
}

// GlobalAddress is re-exported for package-local brevity.
type GlobalAddress = address.GlobalAddress

// ContainsStream reports whether the entry belongs to the given stream.
func (e *Entry) ContainsStream(sid address.StreamID) bool {
	if e == nil || e.Streams == nil {
		return false
	}
	_, ok := e.Streams[sid]
	return ok
}

// BackpointerFor returns the backpointer recorded for sid and whether one
// was present (distinguishing "no backpointer recorded" from NonExist,
// which is itself a valid recorded value meaning "stream starts here").
func (e *Entry) BackpointerFor(sid address.StreamID) (address.GlobalAddress, bool) {
	if e == nil || e.Backpointer == nil {
		return address.NonAddress, false
	}
	ga, ok := e.Backpointer[sid]
	return ga, ok
}
