package sequencer

import "github.com/pkg/errors"

// Sentinel errors for the sequencer protocol (spec §7). AbortedTransaction
// is a logical error surfaced unchanged to the caller; WrongEpoch triggers
// a forced layout refresh by the caller before retry.
var (
	ErrAbortedTransaction = errors.New("transaction aborted: conflicting commit in read set")
	ErrWrongEpoch         = errors.New("stale epoch: token invalidated by layout change")
)
