// Package replication implements the log-replication finite-state machine
// (spec component F): the control plane governing snapshot (full) and
// delta (incremental) replication between an active cluster and standbys.
//
// The state machine follows the teacher's broker.appendFSM idiom (states
// as a small string enum, structured transition logging) but is
// event-driven rather than step-driven: spec §4.F requires
// "every state transition is serialized through a single-threaded event
// dispatcher so that processEvent -> onExit(oldState) -> onEntry(newState)
// is an atomic unit", which this package implements as a dedicated
// dispatcher goroutine reading from one event channel.
package replication

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dahliamalkhi/corfu-go/runtime"
)

// State is one of the five FSM states of spec §3/§4.F.
type State string

const (
	Initialized           State = "INITIALIZED"
	InRequireSnapshotSync State = "IN_REQUIRE_SNAPSHOT_SYNC"
	InSnapshotSync        State = "IN_SNAPSHOT_SYNC"
	InLogEntrySync        State = "IN_LOG_ENTRY_SYNC"
	Stopped               State = "STOPPED"
)

// EventKind is a member of the FSM's input alphabet (spec §4.F).
type EventKind string

const (
	// EventSnapshotSyncRequest requests a (re)start of full snapshot sync.
	EventSnapshotSyncRequest EventKind = "SNAPSHOT_SYNC_REQUEST"
	// EventSnapshotSyncCancel cancels an in-flight snapshot sync without
	// restarting it immediately.
	EventSnapshotSyncCancel EventKind = "SNAPSHOT_SYNC_CANCEL"
	// EventStartLogEntrySync starts (or resumes, following a completed
	// snapshot sync) delta sync. A snapshot-reader task emits this event
	// upon successfully completing its streaming (spec §4.F text calls
	// this "SNAPSHOT_SYNC_COMPLETE"; it is this same transition).
	EventStartLogEntrySync EventKind = "START_LOG_ENTRY_SYNC"
	// EventTrimmedException reports that a required log address has been
	// garbage collected mid-sync.
	EventTrimmedException EventKind = "TRIMMED_EXCEPTION"
	// EventLeadershipLost reports that this process is no longer primary
	// for the active cluster.
	EventLeadershipLost EventKind = "LEADERSHIP_LOST"
	// EventLogReplicationStop permanently stops replication.
	EventLogReplicationStop EventKind = "LOG_REPLICATION_STOP"
)

// Event is a single input to the FSM.
type Event struct {
	Kind EventKind
}

// transitions encodes the table of spec §4.F. Missing entries mean the
// event is logged and ignored in that state.
var transitions = map[State]map[EventKind]State{
	Initialized: {
		EventSnapshotSyncRequest: InSnapshotSync,
		EventStartLogEntrySync:   InLogEntrySync,
		EventLogReplicationStop:  Stopped,
	},
	InSnapshotSync: {
		EventSnapshotSyncRequest: InSnapshotSync, // cancel prior, restart.
		EventSnapshotSyncCancel:  InRequireSnapshotSync,
		EventTrimmedException:    InRequireSnapshotSync,
		EventLeadershipLost:      Initialized,
		EventStartLogEntrySync:   InLogEntrySync, // snapshot complete.
		EventLogReplicationStop:  Stopped,
	},
	InLogEntrySync: {
		EventTrimmedException:    InRequireSnapshotSync,
		EventSnapshotSyncRequest: InSnapshotSync,
		EventLeadershipLost:      Initialized,
		EventLogReplicationStop:  Stopped,
	},
	InRequireSnapshotSync: {
		EventSnapshotSyncRequest: InSnapshotSync,
		EventLeadershipLost:      Initialized,
		EventLogReplicationStop:  Stopped,
	},
	// Stopped is terminal; it has no outgoing transitions.
}

// FSM is the log-replication state machine. All transitions are processed
// by a single dispatcher goroutine started by Run; Post and State are the
// methods safe to call concurrently with Run.
type FSM struct {
	rc  *LogReplicationContext
	bus *runtime.EventBus

	mu        sync.Mutex
	state     State
	eventCh   chan Event
	taskDone  chan struct{} // closed when the current state's task returns.
	cancel    context.CancelFunc
	stoppedCh chan struct{}
}

// New returns an FSM in the Initialized state, driven by rc. If bus is
// non-nil, every transition additionally publishes a
// runtime.EventReplicationStateChanged event carrying the new State as
// Payload.
func New(rc *LogReplicationContext, bus *runtime.EventBus) *FSM {
	return &FSM{
		rc:        rc,
		bus:       bus,
		state:     Initialized,
		eventCh:   make(chan Event, 16),
		stoppedCh: make(chan struct{}),
	}
}

// State returns the FSM's current state.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Post enqueues ev for processing by the dispatcher. Safe for concurrent
// use; never blocks indefinitely (the channel is buffered and Run drains
// it continuously while active).
func (f *FSM) Post(ev Event) {
	select {
	case f.eventCh <- ev:
	case <-f.stoppedCh:
	}
}

// Run is the single-threaded event dispatcher (spec §5: "all state
// transitions are processed on a single dispatcher thread"). It returns
// once the FSM reaches Stopped or ctx is cancelled.
func (f *FSM) Run(ctx context.Context) {
	for {
		select {
		case ev := <-f.eventCh:
			if f.dispatch(ctx, ev) {
				close(f.stoppedCh)
				return
			}
		case <-ctx.Done():
			f.cancelTask()
			close(f.stoppedCh)
			return
		}
	}
}

// dispatch applies one event as an atomic processEvent -> onExit ->
// onEntry unit, and reports whether the FSM has reached Stopped.
func (f *FSM) dispatch(ctx context.Context, ev Event) (stopped bool) {
	f.mu.Lock()
	var old = f.state
	var next, ok = transitions[old][ev.Kind]
	f.mu.Unlock()

	if !ok {
		log.WithFields(log.Fields{"state": old, "event": ev.Kind}).
			Warn("replication FSM: ignoring event invalid for current state")
		return old == Stopped
	}

	f.onExit(old, ev)
	f.mu.Lock()
	f.state = next
	f.mu.Unlock()
	f.onEntry(ctx, next)

	log.WithFields(log.Fields{"from": old, "to": next, "event": ev.Kind}).Info("replication FSM transition")
	addTrace(ctx, "replication FSM: %s -> %s on %s", old, next, ev.Kind)
	if f.bus != nil {
		f.bus.Publish(runtime.Event{Kind: runtime.EventReplicationStateChanged, Payload: next})
	}
	return next == Stopped
}

// onExit always cancels whatever task is running for the state being left.
// This single rule satisfies both "re-entering IN_SNAPSHOT_SYNC from
// itself must cancel the prior snapshot-reader task" and "leadership loss
// cancels any in-flight task" (spec §4.F) without state-specific logic.
func (f *FSM) onExit(old State, ev Event) {
	f.cancelTask()
}

// onEntry launches the task appropriate for the new state, if any.
func (f *FSM) onEntry(ctx context.Context, s State) {
	switch s {
	case InSnapshotSync:
		f.startSnapshotSync(ctx)
	case InLogEntrySync:
		f.startLogEntrySync(ctx)
	case Initialized, InRequireSnapshotSync, Stopped:
		// No task of their own; InRequireSnapshotSync awaits an external
		// SnapshotSyncRequest, Initialized awaits leadership, Stopped is
		// terminal.
	}
}

// cancelTask cancels and waits for the FSM's current background task, if
// any. The cooperative cancel flag it closes is checked by SnapshotReader
// and DeltaFollower implementations between work units (spec §4.F/§5).
func (f *FSM) cancelTask() {
	f.mu.Lock()
	var cancel = f.cancel
	var done = f.taskDone
	f.cancel = nil
	f.taskDone = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (f *FSM) startSnapshotSync(ctx context.Context) {
	if f.rc.SnapshotReader == nil || f.rc.PinnedAddress == nil {
		return
	}
	var taskCtx, cancel = context.WithCancel(ctx)
	var done = make(chan struct{})

	f.mu.Lock()
	f.cancel = cancel
	f.taskDone = done
	f.mu.Unlock()

	f.rc.Pool.Submit(func() {
		defer close(done)

		var pinned, err = f.rc.PinnedAddress(taskCtx)
		if err == nil {
			err = f.rc.SnapshotReader(taskCtx, pinned, taskCtx.Done())
		}
		select {
		case <-taskCtx.Done():
			return // Superseded or cancelled; don't post a stale event.
		default:
		}
		if err != nil {
			f.Post(Event{Kind: EventTrimmedException})
		} else {
			f.Post(Event{Kind: EventStartLogEntrySync})
		}
	})
}

func (f *FSM) startLogEntrySync(ctx context.Context) {
	if f.rc.DeltaFollower == nil {
		return
	}
	var taskCtx, cancel = context.WithCancel(ctx)
	var done = make(chan struct{})

	f.mu.Lock()
	f.cancel = cancel
	f.taskDone = done
	f.mu.Unlock()

	f.rc.Pool.Submit(func() {
		defer close(done)

		var err = f.rc.DeltaFollower(taskCtx, taskCtx.Done())
		select {
		case <-taskCtx.Done():
			return
		default:
		}
		if err != nil {
			f.Post(Event{Kind: EventTrimmedException})
		}
	})
}
