package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeConn is a rawConn test double letting the test control exactly when
// Recv fails (simulating a dropped connection).
type fakeConn struct {
	mu     sync.Mutex
	closed bool
	recvCh chan Entry
	failCh chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{recvCh: make(chan Entry), failCh: make(chan struct{})}
}

func (c *fakeConn) Send(Entry) error { return nil }

func (c *fakeConn) Recv() (Entry, error) {
	select {
	case e := <-c.recvCh:
		return e, nil
	case <-c.failCh:
		return Entry{}, ErrDisconnected
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestSendReturnsDisconnectedBeforeFirstConnect(t *testing.T) {
	var block = make(chan struct{})
	var dial = func(ctx context.Context) (rawConn, error) {
		<-block
		return nil, context.Canceled
	}
	var c = NewReconnectChannel(context.Background(), dial, time.Millisecond)
	defer c.Close()

	var errCh = c.Send(context.Background(), Entry{Type: Heartbeat})
	assert.Equal(t, ErrDisconnected, <-errCh)
	close(block)
}

func TestConnectedFutureIsReplacedOnReconnect(t *testing.T) {
	var conn1 = newFakeConn()
	var dialCount int
	var mu sync.Mutex
	var conns = []*fakeConn{conn1}

	var dial = func(ctx context.Context) (rawConn, error) {
		mu.Lock()
		defer mu.Unlock()
		var c = conns[dialCount]
		dialCount++
		if dialCount < len(conns) {
			// more connections queued
		}
		return c, nil
	}

	var c = NewReconnectChannel(context.Background(), dial, time.Millisecond)
	defer c.Close()

	// Wait for first connection to be established (Send no longer
	// disconnected).
	assert.Eventually(t, func() bool {
		select {
		case err := <-c.Send(context.Background(), Entry{Type: Heartbeat}):
			return err == nil
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	var firstFuture = c.Connected()
	select {
	case <-firstFuture:
		t.Fatal("connected future must not resolve while connected")
	default:
	}

	// Queue a second dial target so the reconnect loop has somewhere to go.
	mu.Lock()
	conns = append(conns, newFakeConn())
	mu.Unlock()

	close(conn1.failCh) // simulate the connection dropping.

	select {
	case <-firstFuture:
	case <-time.After(time.Second):
		t.Fatal("connected future did not resolve after disconnect")
	}

	var secondFuture = c.Connected()
	assert.NotEqual(t, firstFuture, secondFuture, "a fresh future must be handed out after reconnect")
}

func TestReceiveInvokesRegisteredCallback(t *testing.T) {
	var conn = newFakeConn()
	var dial = func(ctx context.Context) (rawConn, error) { return conn, nil }
	var c = NewReconnectChannel(context.Background(), dial, time.Millisecond)
	defer c.Close()

	var gotCh = make(chan Entry, 1)
	c.Receive(func(e Entry) { gotCh <- e })

	assert.Eventually(t, func() bool {
		select {
		case conn.recvCh <- Entry{Type: LogEntry, Payload: []byte("hi")}:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	select {
	case e := <-gotCh:
		assert.Equal(t, LogEntry, e.Type)
		assert.Equal(t, []byte("hi"), e.Payload)
	case <-time.After(time.Second):
		t.Fatal("receive callback was not invoked")
	}
}

func TestCloseIsIdempotentAndClosesConn(t *testing.T) {
	var conn = newFakeConn()
	var dial = func(ctx context.Context) (rawConn, error) { return conn, nil }
	var c = NewReconnectChannel(context.Background(), dial, time.Millisecond)

	assert.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return true
	}, time.Second, time.Millisecond)

	c.Close()
	c.Close() // must not panic or block.

	conn.mu.Lock()
	var closed = conn.closed
	conn.mu.Unlock()
	assert.True(t, closed)
}
