package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dahliamalkhi/corfu-go/address"
	"github.com/dahliamalkhi/corfu-go/logunit"
	"github.com/dahliamalkhi/corfu-go/sequencer"
)

func TestOptimisticCommitWritesAtGrantedAddress(t *testing.T) {
	var u = logunit.NewMemoryUnit()
	var seq = sequencer.NewSequencer()
	var sid = address.StreamID{1}
	var ctx = context.Background()

	var tok, err = seq.TokenQuery(ctx, []address.StreamID{sid})
	assert.NoError(t, err)

	var txc = Begin(Optimistic, seq, u, tok.StreamAddress[sid])
	assert.NoError(t, txc.RecordRead(sid))
	assert.NoError(t, txc.RecordWrite(map[address.StreamID]struct{}{sid: {}}, []byte("v1")))

	assert.NoError(t, txc.Commit(ctx))
	assert.Equal(t, Committed, txc.State())

	e, err := u.Read(ctx, 0)
	assert.NoError(t, err)
	assert.Equal(t, logunit.Data, e.Type)
	assert.Equal(t, []byte("v1"), e.Payload)
}

func TestOptimisticCommitAbortsOnConflict(t *testing.T) {
	var u = logunit.NewMemoryUnit()
	var seq = sequencer.NewSequencer()
	var sid = address.StreamID{1}
	var ctx = context.Background()

	var tok0, _ = seq.TokenQuery(ctx, []address.StreamID{sid})
	var txc = Begin(Optimistic, seq, u, tok0.StreamAddress[sid])
	assert.NoError(t, txc.RecordRead(sid))

	// A concurrent writer commits into sid before txc commits.
	var other = Begin(Optimistic, seq, u, tok0.StreamAddress[sid])
	assert.NoError(t, other.RecordWrite(map[address.StreamID]struct{}{sid: {}}, []byte("other")))
	assert.NoError(t, other.Commit(ctx))

	assert.NoError(t, txc.RecordWrite(map[address.StreamID]struct{}{sid: {}}, []byte("mine")))
	var err = txc.Commit(ctx)
	assert.Equal(t, ErrTransactionAborted, err)
	assert.Equal(t, Aborted, txc.State())
}

func TestSnapshotTransactionRejectsWrites(t *testing.T) {
	var u = logunit.NewMemoryUnit()
	var seq = sequencer.NewSequencer()
	var sid = address.StreamID{1}

	var txc = Begin(Snapshot, seq, u, address.NonAddress)
	var err = txc.RecordWrite(map[address.StreamID]struct{}{sid: {}}, []byte("x"))
	assert.Equal(t, ErrWritesNotPermitted, err)
}

func TestSnapshotTransactionCommitsReadOnly(t *testing.T) {
	var u = logunit.NewMemoryUnit()
	var seq = sequencer.NewSequencer()
	var sid = address.StreamID{1}
	var ctx = context.Background()

	var txc = Begin(Snapshot, seq, u, address.NonAddress)
	assert.NoError(t, txc.RecordRead(sid))
	assert.NoError(t, txc.Commit(ctx))
	assert.Equal(t, Committed, txc.State())
}

func TestNestedTransactionMergesIntoParent(t *testing.T) {
	var u = logunit.NewMemoryUnit()
	var seq = sequencer.NewSequencer()
	var sidA = address.StreamID{1}
	var sidB = address.StreamID{2}
	var ctx = context.Background()

	var parent = Begin(Optimistic, seq, u, address.NonAddress)
	assert.NoError(t, parent.RecordWrite(map[address.StreamID]struct{}{sidA: {}}, []byte("a")))

	var child = parent.BeginNested(Optimistic)
	assert.NoError(t, child.RecordWrite(map[address.StreamID]struct{}{sidB: {}}, []byte("b")))
	assert.NoError(t, child.Commit(ctx))
	assert.Equal(t, Committed, child.State())

	// Nested commit must not have contacted the sequencer / written yet.
	e, err := u.Read(ctx, 0)
	assert.NoError(t, err)
	assert.Equal(t, logunit.Empty, e.Type)

	assert.NoError(t, parent.Commit(ctx))
	assert.Equal(t, Committed, parent.State())

	// Both writes land once the outermost transaction commits.
	entries, err := u.ReadAll(ctx, []address.GlobalAddress{0, 1})
	assert.NoError(t, err)
	assert.Equal(t, logunit.Data, entries[0].Type)
	assert.Equal(t, logunit.Data, entries[1].Type)
}

// TestSameCommitBatchesChainBackpointers covers the case where a single
// commit's write set touches the same stream twice (two RecordWrite calls):
// the second batch's entry must backpoint to the first batch's address
// within this commit, not to the stream's pre-commit tail, or a backward
// stream-view walk would jump past the first batch's entry and skip it.
func TestSameCommitBatchesChainBackpointers(t *testing.T) {
	var u = logunit.NewMemoryUnit()
	var seq = sequencer.NewSequencer()
	var sid = address.StreamID{1}
	var ctx = context.Background()

	// Seed a prior entry for sid so the pre-commit tail is not NonExist.
	var seedTok, _ = seq.TokenRequest(ctx, 1, []address.StreamID{sid}, nil)
	_, err := u.Write(ctx, seedTok.GlobalAddress, map[address.StreamID]struct{}{sid: {}}, nil, []byte("seed"))
	assert.NoError(t, err)
	var preCommitTail = seedTok.GlobalAddress

	var txc = Begin(Optimistic, seq, u, preCommitTail)
	assert.NoError(t, txc.RecordWrite(map[address.StreamID]struct{}{sid: {}}, []byte("first")))
	assert.NoError(t, txc.RecordWrite(map[address.StreamID]struct{}{sid: {}}, []byte("second")))
	assert.NoError(t, txc.Commit(ctx))
	assert.Equal(t, Committed, txc.State())

	var firstAddr = preCommitTail + 1
	var secondAddr = preCommitTail + 2

	first, err := u.Read(ctx, firstAddr)
	assert.NoError(t, err)
	bp, ok := first.BackpointerFor(sid)
	assert.True(t, ok)
	assert.Equal(t, preCommitTail, bp, "the first batch must chain to the pre-commit tail")

	second, err := u.Read(ctx, secondAddr)
	assert.NoError(t, err)
	bp, ok = second.BackpointerFor(sid)
	assert.True(t, ok)
	assert.Equal(t, firstAddr, bp, "the second batch must chain to the first batch's address, not the pre-commit tail")
}

func TestWriteAfterWriteIgnoresReadSetConflicts(t *testing.T) {
	var u = logunit.NewMemoryUnit()
	var seq = sequencer.NewSequencer()
	var sid = address.StreamID{1}
	var sidW = address.StreamID{2}
	var ctx = context.Background()

	var tok0, _ = seq.TokenQuery(ctx, []address.StreamID{sid})

	var other = Begin(Optimistic, seq, u, tok0.StreamAddress[sid])
	assert.NoError(t, other.RecordWrite(map[address.StreamID]struct{}{sid: {}}, []byte("other")))
	assert.NoError(t, other.Commit(ctx))

	// txc read the concurrently written sid but writes only sidW, so it has
	// a read-set conflict and no write-set conflict.
	var txc = Begin(WriteAfterWrite, seq, u, tok0.StreamAddress[sid])
	assert.NoError(t, txc.RecordRead(sid)) // recorded but must not be consulted at commit.
	assert.NoError(t, txc.RecordWrite(map[address.StreamID]struct{}{sidW: {}}, []byte("mine")))
	assert.NoError(t, txc.Commit(ctx), "write-after-write must not abort on a stale read set")
}

func TestGuardErrorMapsTrimToAbort(t *testing.T) {
	var u = logunit.NewMemoryUnit()
	var seq = sequencer.NewSequencer()

	var txc = Begin(Optimistic, seq, u, address.NonAddress)
	var err = txc.GuardError(logunit.ErrTrimmed)
	assert.Equal(t, ErrTransactionAborted, err)
	assert.Equal(t, Aborted, txc.State())
}

func TestGuardErrorPassesThroughWrongEpoch(t *testing.T) {
	var u = logunit.NewMemoryUnit()
	var seq = sequencer.NewSequencer()

	var txc = Begin(Optimistic, seq, u, address.NonAddress)
	var err = txc.GuardError(sequencer.ErrWrongEpoch)
	assert.Equal(t, sequencer.ErrWrongEpoch, err)
	assert.Equal(t, Aborted, txc.State())
}

func TestOperationsAfterTerminalStateAreRejected(t *testing.T) {
	var u = logunit.NewMemoryUnit()
	var seq = sequencer.NewSequencer()
	var sid = address.StreamID{1}

	var txc = Begin(Optimistic, seq, u, address.NonAddress)
	txc.Abort()

	assert.Equal(t, ErrTerminalTransaction, txc.RecordRead(sid))
	assert.Equal(t, ErrTerminalTransaction, txc.RecordWrite(map[address.StreamID]struct{}{sid: {}}, nil))
	assert.Equal(t, ErrTerminalTransaction, txc.Commit(context.Background()))
}
