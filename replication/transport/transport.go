// Package transport implements the replication transport adapter (spec
// component G): an opaque duplex stream of LogReplicationEntry messages
// used by the replication FSM to push entries to a standby and receive
// acknowledgements back, with a reconnect-until-shutdown connection
// lifecycle.
package transport

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EntryType tags a LogReplicationEntry per spec §6's wire format.
type EntryType int

const (
	SnapshotStart EntryType = iota
	SnapshotMessage
	SnapshotEnd
	LogEntry
	Heartbeat
)

// Entry is the replication wire message of spec §6.
type Entry struct {
	Type              EntryType
	Epoch             int64
	Timestamp         int64
	SnapshotTimestamp int64
	Payload           []byte
	Ack               bool
}

// Channel is the duplex message stream consumed by the replication FSM.
// Implementations reconnect internally; callers observe disconnection only
// through the future returned by Connected().
type Channel interface {
	// Send enqueues msg for delivery and returns a future resolved once
	// the peer has acknowledged receipt (or the connection drops).
	Send(ctx context.Context, msg Entry) <-chan error
	// Receive registers fn to be invoked for every inbound Entry.
	Receive(fn func(Entry))
	// Connected returns a future which resolves (is closed) when the
	// current connection is lost. Callers that `<-Connected()` and then
	// want to keep observing reconnections must call Connected() again
	// after it resolves, each time receiving the then-current pending
	// future -- this is deliberately not racy against reconnection,
	// matching spec §4.G.
	Connected() <-chan struct{}
	// Close tears the channel down permanently.
	Close()
}

// ReconnectChannel is a reference Channel implementation: a reconnect loop
// around an underlying dialer, retrying at a fixed interval until Close.
// It does not itself implement wire framing or TLS (explicitly out of
// scope, spec §1); Dial returns an already-established duplex connection.
type ReconnectChannel struct {
	dial          func(ctx context.Context) (rawConn, error)
	retryInterval time.Duration

	mu         sync.Mutex
	conn       rawConn
	connectedCh chan struct{} // closed when the current conn is lost.
	receiveFn  func(Entry)
	closed     bool
	cancel     context.CancelFunc
}

// rawConn is the minimal primitive a dialer must provide: a blocking send
// and receive of one Entry at a time, and a close.
type rawConn interface {
	Send(Entry) error
	Recv() (Entry, error)
	Close() error
}

// NewReconnectChannel starts a channel that dials via dial, retrying every
// retryInterval until ctx is cancelled or Close is called.
func NewReconnectChannel(ctx context.Context, dial func(context.Context) (rawConn, error), retryInterval time.Duration) *ReconnectChannel {
	var runCtx, cancel = context.WithCancel(ctx)
	var c = &ReconnectChannel{
		dial:          dial,
		retryInterval: retryInterval,
		connectedCh:   make(chan struct{}),
		cancel:        cancel,
	}
	go c.run(runCtx)
	return c
}

func (c *ReconnectChannel) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var conn, err = c.dial(ctx)
		if err != nil {
			log.WithError(err).Debug("replication transport: dial failed, retrying")
			select {
			case <-time.After(c.retryInterval):
				continue
			case <-ctx.Done():
				return
			}
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.readLoop(ctx, conn)

		// Connection lost: replace the pending future with a new one so
		// that callers `await`-ing it observe disconnection without
		// racing a subsequent reconnect (spec §4.G).
		c.mu.Lock()
		close(c.connectedCh)
		c.connectedCh = make(chan struct{})
		c.conn = nil
		c.mu.Unlock()

		select {
		case <-time.After(c.retryInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (c *ReconnectChannel) readLoop(ctx context.Context, conn rawConn) {
	for {
		var msg, err = conn.Recv()
		if err != nil {
			_ = conn.Close()
			return
		}
		c.mu.Lock()
		var fn = c.receiveFn
		c.mu.Unlock()
		if fn != nil {
			fn(msg)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Send implements Channel. The returned future resolves with the result of
// the current connection's own Send; it does not wait for an acknowledgement
// message from the peer. ctx is not consulted.
func (c *ReconnectChannel) Send(ctx context.Context, msg Entry) <-chan error {
	var result = make(chan error, 1)
	c.mu.Lock()
	var conn = c.conn
	c.mu.Unlock()

	if conn == nil {
		result <- ErrDisconnected
		return result
	}
	go func() {
		result <- conn.Send(msg)
	}()
	return result
}

// Receive implements Channel.
func (c *ReconnectChannel) Receive(fn func(Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiveFn = fn
}

// Connected implements Channel.
func (c *ReconnectChannel) Connected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedCh
}

// Close implements Channel.
func (c *ReconnectChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var conn = c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
}
