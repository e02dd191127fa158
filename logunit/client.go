// Package logunit implements the log-client contract (spec component B):
// single-address reads, batched parallel reads, writes, hole-filling and
// trim detection against the shared distributed log. Concrete wire framing
// to log-unit servers is out of scope (spec §1); Client is a thin interface
// so a gRPC-backed implementation can be plugged in without touching any
// caller in streamview, txn or replication.
package logunit

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dahliamalkhi/corfu-go/address"
)

// Client is the log-unit RPC surface consumed by the stream view, the
// sequencer-backed transaction path and the replication FSM.
type Client interface {
	// Read returns the Entry at ga. An address never written returns an
	// Empty entry rather than an error; a trimmed address returns
	// ErrTrimmed. Read is idempotent: repeated calls for the same ga
	// return an identical result.
	Read(ctx context.Context, ga address.GlobalAddress) (*Entry, error)
	// ReadAll fetches many addresses concurrently and returns results in
	// the same order as the input, regardless of completion order.
	ReadAll(ctx context.Context, gas []address.GlobalAddress) ([]*Entry, error)
	// Write appends payload at ga on behalf of streams, recording bp as
	// each stream's backpointer to its previous entry (address.NonExist
	// if ga is that stream's first entry). bp is normally populated from
	// the sequencer Token that authorized ga.
	Write(ctx context.Context, ga address.GlobalAddress, streams map[address.StreamID]struct{}, bp address.BackpointerMap, payload []byte) (WriteStatus, error)
	// FillHole forces ga to a permanent Hole, converting a future Read of
	// ga from Empty to Hole and unblocking readers waiting on it.
	FillHole(ctx context.Context, ga address.GlobalAddress) error
	// Trim marks all addresses of stream sid up to and including ga
	// eligible for garbage collection.
	Trim(ctx context.Context, sid address.StreamID, ga address.GlobalAddress) error
}

// readAllConcurrency caps the number of in-flight single reads issued by
// the default ReadAll helper below.
const readAllConcurrency = 32

// ReadAllFanout is a reusable ReadAll implementation in terms of Read,
// fetching addresses with bounded parallelism and returning results in
// input order. Client implementations may call this from their ReadAll (as
// MemoryUnit does), or provide a batched wire call instead.
func ReadAllFanout(ctx context.Context, c Client, gas []address.GlobalAddress) ([]*Entry, error) {
	var (
		out  = make([]*Entry, len(gas))
		errs = make([]error, len(gas))
		sem  = make(chan struct{}, readAllConcurrency)
		wg   sync.WaitGroup
	)
	for i, ga := range gas {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ga address.GlobalAddress) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i], errs[i] = c.Read(ctx, ga)
		}(i, ga)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, errors.WithMessagef(err, "readAll: address %s", gas[i])
		}
	}
	return out, nil
}

// HoleFillOnEmpty reads ga and, if it observes Empty, issues a FillHole and
// re-reads. This is the "hole-fill on demand" policy described in spec
// §4.B: a reader forces progress past an allocated-but-unwritten slot
// rather than stalling.
func HoleFillOnEmpty(ctx context.Context, c Client, ga address.GlobalAddress) (*Entry, error) {
	var e, err = c.Read(ctx, ga)
	if err != nil {
		return nil, err
	}
	if e.Type != Empty {
		return e, nil
	}
	log.WithField("address", ga).Debug("hole-filling empty address")
	if err = c.FillHole(ctx, ga); err != nil {
		return nil, errors.WithMessage(err, "fillHole")
	}
	return c.Read(ctx, ga)
}
