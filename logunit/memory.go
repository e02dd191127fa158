package logunit

import (
	"bytes"
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dahliamalkhi/corfu-go/address"
)

// MemoryUnit is an in-process Client implementation, standing in for a real
// log-unit server the way the teacher's broker/teststub stands in for a
// gRPC broker in unit tests. It is concurrency-safe and is the backing
// store used throughout this repo's own test suites.
type MemoryUnit struct {
	mu        sync.RWMutex
	entries   map[address.GlobalAddress]*Entry
	trimUpTo  map[address.StreamID]address.GlobalAddress
}

// NewMemoryUnit returns an empty MemoryUnit.
func NewMemoryUnit() *MemoryUnit {
	return &MemoryUnit{
		entries:  make(map[address.GlobalAddress]*Entry),
		trimUpTo: make(map[address.StreamID]address.GlobalAddress),
	}
}

// Read implements Client.
func (m *MemoryUnit) Read(_ context.Context, ga address.GlobalAddress) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.entries[ga]; ok {
		if e.Type == Trimmed {
			return nil, ErrTrimmed
		}
		return e, nil
	}
	return &Entry{Address: ga, Type: Empty}, nil
}

// ReadAll implements Client using the bounded-fanout helper.
func (m *MemoryUnit) ReadAll(ctx context.Context, gas []address.GlobalAddress) ([]*Entry, error) {
	return ReadAllFanout(ctx, m, gas)
}

// Write implements Client. Two writes with identical streams and payload at
// the same address are treated as one idempotent write (spec §8
// round-trip property); any other competing write at an occupied address
// is an Overwrite.
func (m *MemoryUnit) Write(_ context.Context, ga address.GlobalAddress, streams map[address.StreamID]struct{}, bp address.BackpointerMap, payload []byte) (WriteStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[ga]; ok {
		if existing.Type == Trimmed {
			return WriteTrimmed, nil
		}
		if sameStreams(existing.Streams, streams) && bytes.Equal(existing.Payload, payload) {
			return Ok, nil
		}
		return Overwrite, nil
	}

	m.entries[ga] = &Entry{
		Address:     ga,
		Type:        Data,
		Streams:     streams,
		Backpointer: bp,
		Payload:     payload,
		Bytes:       len(payload),
	}
	return Ok, nil
}

// FillHole implements Client.
func (m *MemoryUnit) FillHole(_ context.Context, ga address.GlobalAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[ga]; ok {
		if existing.Type == Trimmed {
			return ErrTrimmed
		}
		return nil // Already written; fillHole of an occupied address is a no-op.
	}
	m.entries[ga] = &Entry{Address: ga, Type: Hole}
	log.WithField("address", ga).Debug("filled hole")
	return nil
}

// Trim implements Client. Real log-unit garbage collection is out of
// scope; MemoryUnit records the trim mark and immediately replaces every
// stored entry of sid at or below ga with a TRIMMED copy. The recorded mark
// is not consulted by later Reads or Writes.
func (m *MemoryUnit) Trim(_ context.Context, sid address.StreamID, ga address.GlobalAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.trimUpTo[sid]; !ok || ga > cur {
		m.trimUpTo[sid] = ga
	}
	for addr, e := range m.entries {
		if addr <= ga && e.ContainsStream(sid) {
			// Replace rather than mutate: Entries already handed out by Read
			// are immutable.
			var trimmed = *e
			trimmed.Type = Trimmed
			m.entries[addr] = &trimmed
		}
	}
	return nil
}

// PutCheckpoint installs a checkpoint record directly, for test fixtures
// that need to exercise streamview's checkpoint-filter logic.
func (m *MemoryUnit) PutCheckpoint(ga address.GlobalAddress, sid address.StreamID, kind CheckpointKind, cpID address.StreamID, snapshotAddr address.GlobalAddress, bp address.BackpointerMap) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[ga] = &Entry{
		Address:         ga,
		Type:            Checkpoint,
		Streams:         map[address.StreamID]struct{}{sid: {}},
		Backpointer:     bp,
		CheckpointID:    cpID,
		CheckpointOf:    kind,
		SnapshotAddress: snapshotAddr,
	}
}

func sameStreams(a, b map[address.StreamID]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
