// Package sequencer implements the token/conflict-resolution protocol
// (spec component C): a single shared sequencer issues monotonically
// increasing global and per-stream addresses, and arbitrates optimistic
// transaction commits against a read/write conflict set.
package sequencer

import "github.com/dahliamalkhi/corfu-go/address"

// Kind enumerates the sequencer request kinds of spec §6.
type Kind int

const (
	// Query peeks at current tails without allocating any address.
	Query Kind = iota
	// Raw allocates count global addresses without stream association.
	Raw
	// Stream allocates addresses for a single stream.
	Stream
	// MultiStream allocates addresses shared across several streams.
	MultiStream
	// TX is a MultiStream request additionally subject to conflict
	// resolution against a TxResolutionInfo.
	TX
)

func (k Kind) String() string {
	switch k {
	case Query:
		return "QUERY"
	case Raw:
		return "RAW"
	case Stream:
		return "STREAM"
	case MultiStream:
		return "MULTI_STREAM"
	case TX:
		return "TX"
	default:
		return "UNKNOWN"
	}
}

// Token is the sequencer's response, bundling the epoch it was minted
// under, the allocated (or peeked) global address, and per-stream
// backpointers and addresses for every stream in the request.
type Token struct {
	Epoch          int64
	GlobalAddress  address.GlobalAddress
	Backpointer    address.BackpointerMap
	StreamAddress  map[address.StreamID]address.GlobalAddress
}

// TxResolutionInfo is the conflict-resolution input of a TX request: the
// timestamp the transaction's reads were taken at, and the sets of streams
// it read from and intends to write to.
type TxResolutionInfo struct {
	ReadTimestamp address.GlobalAddress
	ReadSet       map[address.StreamID]struct{}
	WriteSet      map[address.StreamID]struct{}
}
