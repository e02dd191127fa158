// Package streamview implements the queued stream view (spec component D):
// a per-stream iterator over the globally ordered log, using backpointer
// traversal to avoid linear scans, checkpoint-aware initial replay, and
// resolved/unresolved address bookkeeping. This is the central algorithm
// of the core.
package streamview

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dahliamalkhi/corfu-go/address"
	"github.com/dahliamalkhi/corfu-go/logunit"
	"github.com/dahliamalkhi/corfu-go/runtime"
	"github.com/dahliamalkhi/corfu-go/sequencer"
)

// StepModeEvent is the Payload of a runtime.EventStreamViewStepMode event:
// the stream entering or leaving single-step scan mode.
type StepModeEvent struct {
	StreamID   address.StreamID
	SingleStep bool
}

// ContextFn is consulted by NextBatch to decide whether to truncate a
// batch at a given entry (eg the object view stopping at a point of
// interest mid-batch).
type ContextFn func(*logunit.Entry) bool

// Option configures a QueuedStreamView at construction.
type Option func(*QueuedStreamView)

// WithTrimPolicy sets how the view reacts to a trimmed address encountered
// while filling its read queue.
func WithTrimPolicy(p TrimPolicy) Option {
	return func(v *QueuedStreamView) { v.trimPolicy = p }
}

// WithBackpointersDisabled forces pure linear backward scanning, used to
// validate that backpointer-accelerated traversal yields identical output
// (spec §8 boundary case).
func WithBackpointersDisabled() Option {
	return func(v *QueuedStreamView) { v.strategy = linearStrategy{} }
}

// WithEventBus makes the view publish runtime.EventStreamViewStepMode
// events on single-step-scan mode entry/exit.
func WithEventBus(bus *runtime.EventBus) Option {
	return func(v *QueuedStreamView) { v.bus = bus }
}

// QueuedStreamView is the per-stream iterator of spec §4.D. All mutating
// methods (Next, NextBatch, Previous, Find, Seek) hold v.mu for
// their duration; callers must not re-enter the same view from a callback
// invoked while the lock is held (spec §5).
type QueuedStreamView struct {
	mu sync.Mutex

	sid        address.StreamID
	client     logunit.Client
	seq        sequencer.Client
	strategy   AddressDiscoveryStrategy
	trimPolicy TrimPolicy
	bus        *runtime.EventBus

	ctx *StreamContext

	// lastStepUsedBackpointer tracks single-step-mode transitions for
	// logging (spec §4.D: "entering single-step mode is logged; leaving
	// it is logged").
	lastStepUsedBackpointer bool
	everStepped             bool
}

// New returns a QueuedStreamView over sid, reading from client and
// resolving tails via seq.
func New(sid address.StreamID, client logunit.Client, seq sequencer.Client, opts ...Option) *QueuedStreamView {
	var v = &QueuedStreamView{
		sid:      sid,
		client:   client,
		seq:      seq,
		strategy: backpointerStrategy{},
		ctx:      newStreamContext(sid),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// StreamID returns the stream this view iterates.
func (v *QueuedStreamView) StreamID() address.StreamID { return v.sid }

// Stats returns a snapshot of the view's observability counters.
func (v *QueuedStreamView) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctx.Stats
}

// Reset clears all queues and pointers, as on stream-context destruction
// and re-creation (spec §3 "Stream context... lifecycle").
func (v *QueuedStreamView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ctx.reset()
}

// GlobalPointer returns the address of the most recently yielded entry.
func (v *QueuedStreamView) GlobalPointer() address.GlobalAddress {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctx.GlobalPointer
}

// streamTail queries the sequencer for the stream's current tail, clamped
// to maxGlobal (spec §4.D step 1).
func (v *QueuedStreamView) streamTail(ctx context.Context, maxGlobal address.GlobalAddress) (address.GlobalAddress, error) {
	var tok, err = v.seq.TokenQuery(ctx, []address.StreamID{v.sid})
	if err != nil {
		return address.NonExist, err
	}
	var tail, ok = tok.StreamAddress[v.sid]
	if !ok || tail == address.NonExist {
		return address.NonExist, nil
	}
	return address.Min(tail, maxGlobal), nil
}

// noteStep logs single-step-mode entry/exit transitions.
func (v *QueuedStreamView) noteStep(ctx context.Context, usedBackpointer bool) {
	if v.everStepped && usedBackpointer == v.lastStepUsedBackpointer {
		return
	}
	v.everStepped = true
	v.lastStepUsedBackpointer = usedBackpointer
	if usedBackpointer {
		log.WithField("stream", v.sid).Debug("leaving single-step scan mode")
		addTrace(ctx, "stream %s: leaving single-step scan mode (backpointer available)", v.sid)
	} else {
		log.WithField("stream", v.sid).Debug("entering single-step scan mode")
		addTrace(ctx, "stream %s: entering single-step scan mode", v.sid)
	}
	if v.bus != nil {
		v.bus.Publish(runtime.Event{
			Kind:    runtime.EventStreamViewStepMode,
			Payload: StepModeEvent{StreamID: v.sid, SingleStep: !usedBackpointer},
		})
	}
}

// fillReadQueueLocked implements spec §4.D's fillReadQueue. Caller must
// hold v.mu.
func (v *QueuedStreamView) fillReadQueueLocked(ctx context.Context, maxGlobal address.GlobalAddress) (bool, error) {
	var tail, err = v.streamTail(ctx, maxGlobal)
	if err != nil {
		return false, err
	}
	if tail == address.NonExist || tail <= v.ctx.GlobalPointer {
		return false, nil
	}

	var current = tail
	for current > v.ctx.stopAddress() {
		var e, rerr = v.client.Read(ctx, current)
		if rerr != nil {
			if rerr == logunit.ErrTrimmed {
				if v.trimPolicy == IgnoreTrimmed {
					addTrace(ctx, "stream %s: trimmed at %s, stopping (ignoreTrimmed)", v.sid, current)
					break
				}
				return false, rerr
			}
			return false, rerr
		}

		if e.Type == logunit.Empty {
			if e, rerr = logunit.HoleFillOnEmpty(ctx, v.client, current); rerr != nil {
				return false, rerr
			}
			v.ctx.Stats.HoleFills++
		}

		var contains = e.ContainsStream(v.sid)
		var stop bool

		if contains {
			var dec, isCp = v.ctx.applyCheckpointFilter(e)
			switch dec {
			case decInclude, decIncludeStop:
				if isCp {
					v.ctx.ReadCpQueue.Add(current)
				} else {
					v.ctx.ReadQueue.Add(current)
				}
			}
			stop = dec == decIncludeStop || dec == decExcludeStop
		}

		if stop {
			break
		}

		var next, usedBP = v.strategy.Step(v.sid, current, e)
		if contains {
			v.noteStep(ctx, usedBP)
			if usedBP {
				v.ctx.Stats.BackpointerHops++
			} else {
				v.ctx.Stats.SingleStepScans++
			}
		}
		if next == address.NonExist {
			break
		}
		current = next
	}

	return true, nil
}

// Next returns the stream's next entry in address order, or (nil, nil) if
// there is nothing more to yield at or before maxGlobal.
func (v *QueuedStreamView) Next(ctx context.Context, maxGlobal address.GlobalAddress) (*logunit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nextLocked(ctx, maxGlobal)
}

func (v *QueuedStreamView) nextLocked(ctx context.Context, maxGlobal address.GlobalAddress) (*logunit.Entry, error) {
	for {
		if v.ctx.ReadQueue.Len() == 0 && v.ctx.ReadCpQueue.Len() == 0 {
			var ok, err = v.fillReadQueueLocked(ctx, maxGlobal)
			if err != nil {
				return nil, err
			}
			if !ok || (v.ctx.ReadQueue.Len() == 0 && v.ctx.ReadCpQueue.Len() == 0) {
				return nil, nil
			}
		}

		if v.ctx.ReadCpQueue.Len() > 0 {
			var a, _ = v.ctx.ReadCpQueue.PopFirst()
			var e, err = v.client.Read(ctx, a)
			if err != nil {
				return nil, err
			}
			if v.ctx.ReadCpQueue.Len() == 0 && v.ctx.ReadQueue.Len() == 0 && v.ctx.CheckpointSuccess != nil {
				// Fast-forward only as far as maxGlobal permits (spec §9
				// open question resolution).
				v.ctx.GlobalPointer = address.Min(maxGlobal, v.ctx.CheckpointSuccess.EndAddr)
			}
			return e, nil
		}

		var first, ok = v.ctx.ReadQueue.First()
		if !ok {
			return nil, nil
		}
		if first > maxGlobal {
			return nil, nil
		}
		var a, _ = v.ctx.ReadQueue.PopFirst()
		var e, err = v.client.Read(ctx, a)
		if err != nil {
			return nil, err
		}
		if e.ContainsStream(v.sid) {
			v.ctx.GlobalPointer = a
			v.ctx.ResolvedQueue.Add(a)
			v.ctx.MaxResolution = address.Max(v.ctx.MaxResolution, a)
			v.ctx.Stats.AddressesResolved++
			return e, nil
		}
		// Candidate turned out not to belong to the stream; drop and loop.
	}
}

// NextBatch fills to maxGlobal, reads every queued candidate address
// concurrently, and returns the DATA entries of the stream up to the first
// one satisfying contextFn (inclusive), or all of them if none match.
func (v *QueuedStreamView) NextBatch(ctx context.Context, maxGlobal address.GlobalAddress, contextFn ContextFn) ([]*logunit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.fillReadQueueLocked(ctx, maxGlobal); err != nil {
		return nil, err
	}

	var candidates []address.GlobalAddress
	for _, a := range v.ctx.ReadQueue.Slice() {
		if a <= maxGlobal {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	for _, a := range candidates {
		v.ctx.ReadQueue.Remove(a)
	}

	var entries, err = v.client.ReadAll(ctx, candidates)
	if err != nil {
		// Restore candidates so a retry can re-attempt the batch.
		for _, a := range candidates {
			v.ctx.ReadQueue.Add(a)
		}
		return nil, err
	}

	var result []*logunit.Entry
	for i, e := range entries {
		if e.Type != logunit.Data || !e.ContainsStream(v.sid) {
			continue
		}
		result = append(result, e)
		v.ctx.ResolvedQueue.Add(e.Address)
		v.ctx.MaxResolution = address.Max(v.ctx.MaxResolution, e.Address)
		v.ctx.GlobalPointer = e.Address

		if contextFn != nil && contextFn(e) {
			// Truncate here; restore any later candidates to the read
			// queue so they're not lost.
			for _, a := range candidates[i+1:] {
				v.ctx.ReadQueue.Add(a)
			}
			return result, nil
		}
	}
	return result, nil
}

// resolveDownwardLocked fully resolves the stream's history below
// v.ctx.MinResolution down to its start, adding matching entries to
// ResolvedQueue, then resets MinResolution to address.NonAddress (spec
// §4.D previous(): "which pushes minResolution back to NON_ADDRESS").
func (v *QueuedStreamView) resolveDownwardLocked(ctx context.Context) error {
	if v.ctx.MinResolution == address.NonAddress {
		return nil
	}
	var current = v.ctx.MinResolution - 1
	for current >= 0 {
		var e, err = v.client.Read(ctx, current)
		if err != nil {
			if err == logunit.ErrTrimmed && v.trimPolicy == IgnoreTrimmed {
				break
			}
			return err
		}
		if e.Type == logunit.Empty {
			if e, err = logunit.HoleFillOnEmpty(ctx, v.client, current); err != nil {
				return err
			}
		}
		if e.ContainsStream(v.sid) {
			v.ctx.ResolvedQueue.Add(current)
		}
		var next, _ = v.strategy.Step(v.sid, current, e)
		if next == address.NonExist {
			break
		}
		current = next
	}
	v.ctx.MinResolution = address.NonAddress
	return nil
}

// Previous moves the view backward and returns the entry immediately below
// the current globalPointer, or (nil, nil) if the stream start has been
// reached.
func (v *QueuedStreamView) Previous(ctx context.Context) (*logunit.Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var prevAddr address.GlobalAddress
	var ok bool
	for {
		prevAddr, ok = v.ctx.ResolvedQueue.Lower(v.ctx.GlobalPointer)
		if ok && (v.ctx.MinResolution == address.NonAddress || prevAddr >= v.ctx.MinResolution) {
			break
		}
		if v.ctx.MinResolution == address.NonAddress {
			return nil, nil
		}
		if err := v.resolveDownwardLocked(ctx); err != nil {
			return nil, err
		}
	}

	if address.IsAddress(v.ctx.GlobalPointer) {
		// Resume forward iteration correctly after this reverse step.
		v.ctx.ReadQueue.Add(v.ctx.GlobalPointer)
	}
	v.ctx.GlobalPointer = prevAddr
	return v.client.Read(ctx, prevAddr)
}

// remainingUpToLocked drains Next until globalPointer reaches target or no
// more entries remain at or below target.
func (v *QueuedStreamView) remainingUpToLocked(ctx context.Context, target address.GlobalAddress) error {
	for v.ctx.GlobalPointer < target {
		var e, err = v.nextLocked(ctx, target)
		if err != nil {
			return err
		}
		if e == nil {
			return nil
		}
	}
	return nil
}

// farHorizon stands in for "the end of the log" when Find needs to keep
// resolving forward past any particular maxGlobal to locate the next
// stream entry above a given address.
const farHorizon address.GlobalAddress = 1<<62 - 1

// Find resolves addr's nearest neighbor in direction dir amongst entries of
// this stream (or addr itself, if inclusive and addr belongs to the
// stream), returning address.NotFound if none exists.
func (v *QueuedStreamView) Find(ctx context.Context, addr address.GlobalAddress, dir address.Direction, inclusive bool) (address.GlobalAddress, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.remainingUpToLocked(ctx, addr+1); err != nil {
		return address.NotFound, err
	}

	if inclusive && v.ctx.ResolvedQueue.Contains(addr) {
		return addr, nil
	}

	switch dir {
	case address.DirectionUp:
		// The forward walk above only guarantees resolution through
		// addr; the next-higher entry may lie beyond it, so keep
		// advancing until one turns up or the stream is exhausted.
		for {
			if a, ok := v.ctx.ResolvedQueue.Higher(addr); ok {
				return a, nil
			}
			var e, err = v.nextLocked(ctx, farHorizon)
			if err != nil {
				return address.NotFound, err
			}
			if e == nil {
				return address.NotFound, nil
			}
		}
	case address.DirectionDown:
		if a, ok := v.ctx.ResolvedQueue.Lower(addr); ok {
			return a, nil
		}
		return address.NotFound, nil
	}
	return address.NotFound, nil
}

// Seek repositions the view so that the next call to Next yields the
// smallest resolved-or-candidate address >= addr.
func (v *QueuedStreamView) Seek(addr address.GlobalAddress) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.ctx.ReadQueue.RemoveBelow(addr)
	for _, a := range v.ctx.ResolvedQueue.TailSetRemove(addr) {
		v.ctx.ReadQueue.Add(a)
	}
	v.ctx.GlobalPointer = addr - 1
	// Clamp so minResolution <= maxResolution always holds (spec §9 open
	// question resolution), rather than allowing min to exceed max.
	v.ctx.MinResolution = address.Min(addr, v.ctx.MaxResolution)
}
