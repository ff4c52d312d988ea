package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memConn is an in-memory Conn fed by a channel.
type memConn struct {
	recv   chan []byte
	sent   [][]byte
	sendMu sync.Mutex

	sendErr error
	closed  atomic.Bool
}

func newMemConn() *memConn {
	return &memConn{recv: make(chan []byte, 16)}
}

func (c *memConn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload, ok := <-c.recv:
		if !ok {
			return nil, errors.New("connection closed")
		}
		return payload, nil
	}
}

func (c *memConn) Send(_ context.Context, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *memConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *memConn) sentPayloads() [][]byte {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func fastOptions() Options {
	return Options{
		ReconnectBackoff: 5 * time.Millisecond,
		SendRetries:      3,
		SendRetryDelay:   5 * time.Millisecond,
		SendsPerSecond:   1000,
	}
}

func TestSupervisor_DeliversPayloadsInOrder(t *testing.T) {
	conn := newMemConn()
	s := NewSupervisor(func(ctx context.Context) (Conn, error) { return conn, nil }, fastOptions())

	var mu sync.Mutex
	var got []string
	s.RegisterHandler(func(payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(payload))
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	conn.recv <- []byte("one")
	conn.recv <- []byte("two")
	conn.recv <- []byte("three")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"one", "two", "three"}, got)
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSupervisor_ReconnectsAfterConnectionLoss(t *testing.T) {
	var dials atomic.Int32
	conns := make(chan *memConn, 4)
	dial := func(ctx context.Context) (Conn, error) {
		dials.Add(1)
		conn := newMemConn()
		conns <- conn
		return conn, nil
	}

	s := NewSupervisor(dial, fastOptions())
	var received atomic.Int32
	s.RegisterHandler(func([]byte) { received.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	first := <-conns
	first.recv <- []byte("a")
	close(first.recv) // simulate connection drop

	second := <-conns
	second.recv <- []byte("b")

	require.Eventually(t, func() bool { return received.Load() == 2 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, dials.Load(), int32(2))
	assert.True(t, first.closed.Load(), "dropped connection is closed")
}

func TestSupervisor_RetriesDialFailures(t *testing.T) {
	var dials atomic.Int32
	conn := newMemConn()
	dial := func(ctx context.Context) (Conn, error) {
		if dials.Add(1) < 3 {
			return nil, errors.New("connection refused")
		}
		return conn, nil
	}

	s := NewSupervisor(dial, fastOptions())
	var received atomic.Int32
	s.RegisterHandler(func([]byte) { received.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	conn.recv <- []byte("finally")
	require.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(3), dials.Load())
}

func TestSupervisor_SendOverLiveConnection(t *testing.T) {
	conn := newMemConn()
	s := NewSupervisor(func(ctx context.Context) (Conn, error) { return conn, nil }, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.currentConn() != nil }, time.Second, time.Millisecond)

	require.NoError(t, s.Send(ctx, []byte("hello")))
	sent := conn.sentPayloads()
	require.Len(t, sent, 1)
	assert.Equal(t, "hello", string(sent[0]))
}

func TestSupervisor_SendFailsAfterRetriesWithoutConnection(t *testing.T) {
	s := NewSupervisor(func(ctx context.Context) (Conn, error) {
		return nil, errors.New("down")
	}, fastOptions())

	start := time.Now()
	err := s.Send(context.Background(), []byte("x"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.GreaterOrEqual(t, time.Since(start), 2*5*time.Millisecond, "retries are spaced by the fixed delay")
}

func TestSupervisor_SendRetriesTransientFailure(t *testing.T) {
	conn := newMemConn()
	conn.sendErr = errors.New("broken pipe")
	s := NewSupervisor(func(ctx context.Context) (Conn, error) { return conn, nil }, fastOptions())
	s.setConn(conn)

	go func() {
		time.Sleep(7 * time.Millisecond)
		conn.sendMu.Lock()
		conn.sendErr = nil
		conn.sendMu.Unlock()
	}()

	require.NoError(t, s.Send(context.Background(), []byte("retry me")))
	assert.Len(t, conn.sentPayloads(), 1)
}

func TestSupervisor_SendCanceledContext(t *testing.T) {
	s := NewSupervisor(func(ctx context.Context) (Conn, error) {
		return nil, errors.New("down")
	}, fastOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupervisor_UnregisteredHandlerDropsPayloads(t *testing.T) {
	conn := newMemConn()
	s := NewSupervisor(func(ctx context.Context) (Conn, error) { return conn, nil }, fastOptions())

	var received atomic.Int32
	s.RegisterHandler(func([]byte) { received.Add(1) })
	s.UnregisterHandler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	conn.recv <- []byte("dropped")
	conn.recv <- []byte("also dropped")
	require.Eventually(t, func() bool { return len(conn.recv) == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond) // let the in-flight read finish dispatching

	s.RegisterHandler(func([]byte) { received.Add(1) })
	conn.recv <- []byte("kept")

	require.Eventually(t, func() bool { return received.Load() >= 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}
