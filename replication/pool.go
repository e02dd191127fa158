package replication

// WorkerPool runs snapshot-reader and delta-follower tasks off the FSM's
// single dispatcher goroutine (spec §4.F/§5: "Action tasks... run on a
// worker pool; they communicate with the FSM only by enqueueing events.
// This eliminates the need for locks within state objects.").
type WorkerPool interface {
	Submit(task func())
}

// GoPool is the simplest WorkerPool: every task gets its own goroutine.
// Suitable for the reference implementation and tests; a production
// embedder may substitute a bounded pool.
type GoPool struct{}

func (GoPool) Submit(task func()) { go task() }
