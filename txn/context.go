// Package txn implements the transactional context (spec component E): a
// client-side wrapper over the sequencer and log client providing
// optimistic, snapshot and write-after-write transaction semantics.
//
// The source models the active transaction as thread-local state; per spec
// §9's design note, this reimplementation instead passes an explicit
// *Context as the first argument to every object-view operation performed
// within a transaction. There is no implicit global transaction stack.
package txn

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dahliamalkhi/corfu-go/address"
	"github.com/dahliamalkhi/corfu-go/logunit"
	"github.com/dahliamalkhi/corfu-go/sequencer"
)

// Kind selects a transaction's conflict-resolution policy.
type Kind int

const (
	// Optimistic is the default: commit is rejected if any stream in the
	// read set has a committed write after the transaction's snapshot.
	Optimistic Kind = iota
	// Snapshot pins a read timestamp and permits no writes.
	Snapshot
	// WriteAfterWrite computes conflicts on write sets only; read-read
	// conflicts are ignored.
	WriteAfterWrite
)

// State is the lifecycle state of a transaction (spec §4.E). Modeled as a
// small string enum in the teacher's appendState idiom.
type State string

const (
	Active     State = "active"
	Committing State = "committing"
	Committed  State = "committed"
	Aborted    State = "aborted"
)

type write struct {
	streams map[address.StreamID]struct{}
	payload []byte
}

// Context is the explicit, caller-held handle to an in-flight transaction.
// It is not safe for concurrent use by multiple goroutines without external
// synchronization beyond what's needed to serialize calls against a single
// logical transaction.
type Context struct {
	mu sync.Mutex

	kind   Kind
	seq    sequencer.Client
	client logunit.Client
	parent *Context

	readTs   address.GlobalAddress
	readSet  map[address.StreamID]struct{}
	writeSet map[address.StreamID]struct{}
	writes   []write

	state State
}

// Begin starts a new outermost transaction of the given kind. readTs is the
// snapshot read timestamp; for Optimistic and WriteAfterWrite transactions
// it is normally the sequencer's current tail at start, obtained via
// sequencer.Client.TokenQuery.
func Begin(kind Kind, seq sequencer.Client, client logunit.Client, readTs address.GlobalAddress) *Context {
	return &Context{
		kind:     kind,
		seq:      seq,
		client:   client,
		readTs:   readTs,
		readSet:  make(map[address.StreamID]struct{}),
		writeSet: make(map[address.StreamID]struct{}),
		state:    Active,
	}
}

// BeginNested starts a transaction nested within t. Nested transactions
// compose by merging their read/write sets into the enclosing context;
// only the outermost transaction ever contacts the sequencer (spec §4.E:
// "commit is performed only at the outermost boundary").
func (t *Context) BeginNested(kind Kind) *Context {
	t.mu.Lock()
	defer t.mu.Unlock()

	return &Context{
		kind:     kind,
		seq:      t.seq,
		client:   t.client,
		parent:   t,
		readTs:   t.readTs,
		readSet:  make(map[address.StreamID]struct{}),
		writeSet: make(map[address.StreamID]struct{}),
		state:    Active,
	}
}

// State returns the transaction's current lifecycle state.
func (t *Context) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ReadTimestamp returns the snapshot this transaction reads as of.
func (t *Context) ReadTimestamp() address.GlobalAddress { return t.readTs }

// RecordRead registers that the transaction observed stream sid, growing
// its read set. WriteAfterWrite transactions record it too, but do not
// consult their own read set at commit.
func (t *Context) RecordRead(sid address.StreamID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Active {
		return ErrTerminalTransaction
	}
	t.readSet[sid] = struct{}{}
	return nil
}

// RecordWrite enqueues a write to be performed at commit time, on behalf of
// streams, and grows the write set.
func (t *Context) RecordWrite(streams map[address.StreamID]struct{}, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Active {
		return ErrTerminalTransaction
	}
	if t.kind == Snapshot {
		return ErrWritesNotPermitted
	}
	for sid := range streams {
		t.writeSet[sid] = struct{}{}
	}
	t.writes = append(t.writes, write{streams: streams, payload: payload})
	return nil
}

// Abort transitions the transaction to Aborted. Safe to call from any
// non-terminal state; a no-op if already terminal.
func (t *Context) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Active || t.state == Committing {
		t.state = Aborted
	}
}

// GuardError inspects err from an operation performed within the
// transaction (typically a stream-view Read) and, per the failure
// semantics of spec §4.E/§7, aborts the transaction and returns the
// caller-facing error: a trim or sequencer epoch mismatch both force an
// abort, the latter additionally signaling the caller to refresh its
// layout view before retrying.
func (t *Context) GuardError(err error) error {
	if err == nil {
		return nil
	}
	t.Abort()
	switch err {
	case logunit.ErrTrimmed:
		return ErrTransactionAborted
	case sequencer.ErrWrongEpoch:
		return sequencer.ErrWrongEpoch // caller forces layout refresh and retries.
	default:
		return err // Network: caller may retry.
	}
}

// Commit finalizes the transaction. For a nested transaction this merges
// its read/write sets into the parent without contacting the sequencer.
// For an outermost transaction this issues a TX token request (Optimistic,
// WriteAfterWrite) or simply validates no writes occurred (Snapshot), then
// performs queued writes at the granted address.
func (t *Context) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.state != Active {
		t.mu.Unlock()
		return ErrTerminalTransaction
	}
	if t.parent != nil {
		t.mergeIntoParentLocked()
		t.state = Committed
		t.mu.Unlock()
		return nil
	}
	t.state = Committing
	t.mu.Unlock()

	return t.commitOutermost(ctx)
}

// mergeIntoParentLocked folds t's read/write sets and queued writes into
// its parent. t.mu is held by the caller; the parent's lock is taken while
// t.mu is still held (always child first, then parent).
func (t *Context) mergeIntoParentLocked() {
	var p = t.parent
	p.mu.Lock()
	defer p.mu.Unlock()

	for sid := range t.readSet {
		p.readSet[sid] = struct{}{}
	}
	for sid := range t.writeSet {
		p.writeSet[sid] = struct{}{}
	}
	p.writes = append(p.writes, t.writes...)
}

func (t *Context) commitOutermost(ctx context.Context) error {
	t.mu.Lock()
	var writes = append([]write(nil), t.writes...)
	var kind = t.kind
	t.mu.Unlock()

	if kind == Snapshot {
		if len(writes) > 0 {
			t.Abort()
			return ErrWritesNotPermitted
		}
		t.mu.Lock()
		t.state = Committed
		t.mu.Unlock()
		return nil
	}

	if len(writes) == 0 {
		t.mu.Lock()
		t.state = Committed
		t.mu.Unlock()
		return nil
	}

	var txnInfo = &sequencer.TxResolutionInfo{
		ReadTimestamp: t.readTs,
		ReadSet:       copySet(t.readSet, kind),
		WriteSet:      copySet(t.writeSet, Optimistic), // write set always considered
	}
	if kind == WriteAfterWrite {
		// The sequencer checks conflicts against ReadSet; for a
		// write-after-write transaction that conflict set is its write set.
		txnInfo.ReadSet = copySet(t.writeSet, Optimistic)
	}

	var streams []address.StreamID
	for sid := range t.writeSet {
		streams = append(streams, sid)
	}

	var tok, err = t.seq.TokenRequest(ctx, int64(len(writes)), streams, txnInfo)
	if err != nil {
		t.Abort()
		if err == sequencer.ErrAbortedTransaction {
			log.WithField("readTimestamp", t.readTs).Info("optimistic transaction aborted by sequencer")
			return ErrTransactionAborted
		}
		return err
	}

	// tok.Backpointer reflects each stream's tail as of before this commit;
	// successive write batches within the same commit must instead chain to
	// one another, or a backward stream-view walk would jump straight past
	// an earlier batch's entry to the pre-commit tail, skipping it entirely.
	var addr = tok.GlobalAddress
	var commitTail = make(map[address.StreamID]address.GlobalAddress, len(tok.Backpointer))
	for sid, bp := range tok.Backpointer {
		commitTail[sid] = bp
	}
	for _, w := range writes {
		var bp = make(address.BackpointerMap, len(w.streams))
		for sid := range w.streams {
			bp[sid] = commitTail[sid]
		}
		var status, werr = t.client.Write(ctx, addr, w.streams, bp, w.payload)
		if werr != nil {
			t.Abort()
			return werr
		}
		if status != logunit.Ok {
			t.Abort()
			return errorsForStatus(status)
		}
		for sid := range w.streams {
			commitTail[sid] = addr
		}
		addr++
	}

	t.mu.Lock()
	t.state = Committed
	t.mu.Unlock()
	return nil
}

// copySet returns a copy of s, or an empty set if kind is WriteAfterWrite
// (which ignores the read set entirely at commit time).
func copySet(s map[address.StreamID]struct{}, kind Kind) map[address.StreamID]struct{} {
	if kind == WriteAfterWrite {
		return map[address.StreamID]struct{}{}
	}
	var out = make(map[address.StreamID]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func errorsForStatus(s logunit.WriteStatus) error {
	switch s {
	case logunit.Overwrite:
		return logunit.ErrOverwrite
	case logunit.WriteTrimmed:
		return logunit.ErrTrimmed
	case logunit.OutOfSpace:
		return logunit.ErrOutOfSpace
	default:
		return logunit.ErrNetwork
	}
}
