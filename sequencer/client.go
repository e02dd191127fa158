package sequencer

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dahliamalkhi/corfu-go/address"
)

// Client is the sequencer RPC surface consumed by the stream view's
// fillReadQueue (tail queries) and the transactional context (token
// requests, including TX conflict resolution).
type Client interface {
	// TokenQuery peeks at the current global and per-stream tails without
	// allocating any address.
	TokenQuery(ctx context.Context, streams []address.StreamID) (Token, error)
	// TokenRequest allocates count addresses across streams. If txn is
	// non-nil the request is a TX request and is subject to conflict
	// resolution; a conflict yields ErrAbortedTransaction.
	TokenRequest(ctx context.Context, count int64, streams []address.StreamID, txn *TxResolutionInfo) (Token, error)
}

// Sequencer is the in-process reference sequencer: a single shared
// allocator of global and per-stream tails, serializing all requests
// behind one mutex (spec §4.C: "tie-break on concurrent TX requests is
// strict arrival order, serialized at the sequencer"), and tracking the
// epoch under which outstanding tokens remain valid.
type Sequencer struct {
	mu sync.Mutex

	epoch      int64
	globalTail address.GlobalAddress
	streamTail map[address.StreamID]address.GlobalAddress
	// lastCommit records, for each stream, the global address of the most
	// recently committed write -- the conflict-detection ledger consulted
	// by TX requests.
	lastCommit map[address.StreamID]address.GlobalAddress
}

// NewSequencer returns a Sequencer with empty tails at epoch 0. globalTail
// starts at NeverRead (-1) so the first allocated global address is 0, the
// log's first real slot.
func NewSequencer() *Sequencer {
	return &Sequencer{
		globalTail: address.NeverRead,
		streamTail: make(map[address.StreamID]address.GlobalAddress),
		lastCommit: make(map[address.StreamID]address.GlobalAddress),
	}
}

// BumpEpoch increases the sequencer's epoch, invalidating every
// outstanding token. A client holding a stale-epoch token must abort (spec
// §3: "Token... An epoch increase invalidates outstanding tokens").
func (s *Sequencer) BumpEpoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	log.WithField("epoch", s.epoch).Info("sequencer epoch advanced")
	return s.epoch
}

// Epoch returns the sequencer's current epoch.
func (s *Sequencer) Epoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// TokenQuery implements Client without mutating any tail.
func (s *Sequencer) TokenQuery(_ context.Context, streams []address.StreamID) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t = Token{
		Epoch:         s.epoch,
		GlobalAddress: s.globalTail,
		StreamAddress: make(map[address.StreamID]address.GlobalAddress, len(streams)),
	}
	for _, sid := range streams {
		if ga, ok := s.streamTail[sid]; ok {
			t.StreamAddress[sid] = ga
		} else {
			t.StreamAddress[sid] = address.NonExist
		}
	}
	return t, nil
}

// TokenRequest implements Client.
func (s *Sequencer) TokenRequest(_ context.Context, count int64, streams []address.StreamID, txn *TxResolutionInfo) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if txn != nil {
		for sid := range txn.ReadSet {
			if last, ok := s.lastCommit[sid]; ok && last > txn.ReadTimestamp {
				log.WithFields(log.Fields{
					"stream":        sid,
					"readTimestamp": txn.ReadTimestamp,
					"lastCommit":    last,
				}).Info("transaction aborted: conflicting commit in read set")
				return Token{}, ErrAbortedTransaction
			}
		}
	}

	var t = Token{
		Epoch:         s.epoch,
		Backpointer:   make(address.BackpointerMap, len(streams)),
		StreamAddress: make(map[address.StreamID]address.GlobalAddress, len(streams)),
	}

	// Allocate a contiguous global range; the token's GlobalAddress is the
	// first address of the range (matching spec §3's single-GA Token
	// shape; multi-entry appends consume successive addresses from here).
	t.GlobalAddress = s.globalTail + 1
	s.globalTail += address.GlobalAddress(count)

	for _, sid := range streams {
		prev, ok := s.streamTail[sid]
		if !ok {
			prev = address.NonExist
		}
		t.Backpointer[sid] = prev
		s.streamTail[sid] = t.GlobalAddress
		t.StreamAddress[sid] = t.GlobalAddress
	}

	if txn != nil {
		for sid := range txn.WriteSet {
			s.lastCommit[sid] = t.GlobalAddress
		}
	}

	return t, nil
}
