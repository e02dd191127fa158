package replication

import (
	"context"

	"golang.org/x/net/trace"

	"github.com/dahliamalkhi/corfu-go/address"
	"github.com/dahliamalkhi/corfu-go/replication/transport"
)

// LogReplicationContext bundles the shared, per-replication-session
// collaborators referenced by every FSM state (spec §3: "Each carries a
// reference to a shared LogReplicationContext (schedulers, readers, peer
// handle)"). It is constructed once by the embedder and handed to FSM.
type LogReplicationContext struct {
	// Peer is the transport adapter (component G) used to push entries
	// and receive acks/heartbeats.
	Peer transport.Channel
	// Pool runs snapshot-reader and delta-follower tasks off the
	// dispatcher goroutine.
	Pool WorkerPool

	// PinnedAddress returns the global address a new snapshot sync should
	// be pinned at (normally the sequencer's current tail). Snapshot
	// object-materialization mechanics are out of scope (spec §1); the
	// embedder supplies SnapshotReader to do the actual table streaming.
	PinnedAddress func(ctx context.Context) (address.GlobalAddress, error)
	// SnapshotReader streams all tables as of pinned to Peer. It must
	// observe cancelFn and return promptly once it's closed.
	SnapshotReader func(ctx context.Context, pinned address.GlobalAddress, cancelFn <-chan struct{}) error
	// DeltaFollower continuously streams new log entries to Peer. It must
	// observe cancelFn and return promptly once it's closed.
	DeltaFollower func(ctx context.Context, cancelFn <-chan struct{}) error
}

// addTrace records a breadcrumb against ctx's trace.Trace, matching the
// teacher's consumer.addTrace / broker.addTrace helpers.
func addTrace(ctx context.Context, format string, args ...interface{}) {
	if tr, ok := trace.FromContext(ctx); ok {
		tr.LazyPrintf(format, args...)
	}
}
