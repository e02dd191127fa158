package txn

import "github.com/pkg/errors"

// Sentinel errors for the transactional context (spec §4.E, §7).
var (
	// ErrTransactionAborted is returned by Commit (or surfaced from a read
	// within an active transaction) on conflict or trim. Callers should
	// begin a fresh transaction at a new snapshot.
	ErrTransactionAborted = errors.New("transaction aborted")
	// ErrTerminalTransaction is returned by any operation against a
	// transaction already in a terminal state (Committed or Aborted).
	ErrTerminalTransaction = errors.New("transaction is in a terminal state")
	// ErrWritesNotPermitted is returned by RecordWrite on a Snapshot
	// transaction, and by Commit if a Snapshot transaction nonetheless holds
	// writes.
	ErrWritesNotPermitted = errors.New("writes not permitted in a snapshot transaction")
)
