package logunit

import (
	"github.com/pkg/errors"
)

// WriteStatus is the outcome of a Write call.
type WriteStatus int

const (
	Ok WriteStatus = iota
	Overwrite
	WriteTrimmed
	OutOfSpace
	WriteNetwork
)

func (s WriteStatus) String() string {
	switch s {
	case Ok:
		return "OK"
	case Overwrite:
		return "OVERWRITE"
	case WriteTrimmed:
		return "TRIMMED"
	case OutOfSpace:
		return "OUT_OF_SPACE"
	case WriteNetwork:
		return "NETWORK"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors for the logical-error taxonomy of the log-client/
// sequencer protocols (spec §7). Transient errors (Network, ServerNotReady)
// are recovered locally by callers via reconnect loops; logical errors
// (Trimmed, Overwrite, OutOfSpace) surface unchanged to the caller.
var (
	ErrTrimmed       = errors.New("address has been trimmed")
	ErrOverwrite     = errors.New("competing writer at address")
	ErrOutOfSpace    = errors.New("log unit exhausted")
	ErrNetwork       = errors.New("network error")
	ErrServerNotReady = errors.New("log unit not ready")
)
