// Package transport supervises the streaming connection to the backend.
//
// The concrete socket is pluggable through Dialer; the rest of the client
// sees only a stable register/unregister handler plus Send surface, so
// reconnect churn never reaches the reducers.
package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Handler consumes one inbound payload.
type Handler func(payload []byte)

// Conn is a single live stream connection.
type Conn interface {
	// Recv blocks until the next payload arrives or the connection fails.
	Recv(ctx context.Context) ([]byte, error)
	// Send writes one payload.
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Dialer opens a new connection.
type Dialer func(ctx context.Context) (Conn, error)

// Options tunes the supervisor. Zero values pick the defaults.
type Options struct {
	// ReconnectBackoff is the fixed delay between connection attempts.
	ReconnectBackoff time.Duration
	// SendRetries is how many times Send is attempted before giving up.
	SendRetries int
	// SendRetryDelay is the fixed delay between send attempts.
	SendRetryDelay time.Duration
	// SendsPerSecond caps outbound sends; bursts up to twice the rate.
	SendsPerSecond int
	Logger         *slog.Logger
}

const (
	defaultReconnectBackoff = 2 * time.Second
	defaultSendRetries      = 3
	defaultSendRetryDelay   = time.Second
	defaultSendsPerSecond   = 5
)

// Supervisor keeps one connection alive, recreating it on failure with a
// fixed backoff, and delivers every received payload to the registered
// handler in arrival order.
type Supervisor struct {
	dial    Dialer
	backoff time.Duration
	retries int
	delay   time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.RWMutex
	handler Handler
	conn    Conn
}

// NewSupervisor creates a supervisor around dial.
func NewSupervisor(dial Dialer, opts Options) *Supervisor {
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = defaultReconnectBackoff
	}
	if opts.SendRetries <= 0 {
		opts.SendRetries = defaultSendRetries
	}
	if opts.SendRetryDelay <= 0 {
		opts.SendRetryDelay = defaultSendRetryDelay
	}
	if opts.SendsPerSecond <= 0 {
		opts.SendsPerSecond = defaultSendsPerSecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Supervisor{
		dial:    dial,
		backoff: opts.ReconnectBackoff,
		retries: opts.SendRetries,
		delay:   opts.SendRetryDelay,
		limiter: rate.NewLimiter(rate.Limit(opts.SendsPerSecond), opts.SendsPerSecond*2),
		logger:  opts.Logger,
	}
}

// RegisterHandler installs the receive callback. Only one handler is
// installed at a time; registering replaces the previous one.
func (s *Supervisor) RegisterHandler(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// UnregisterHandler removes the receive callback. Payloads arriving while no
// handler is installed are dropped.
func (s *Supervisor) UnregisterHandler() {
	s.RegisterHandler(nil)
}

// Run drives the connect/receive loop until ctx is canceled. It always
// returns ctx.Err() family errors; connection failures are retried forever.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("Stream dial failed, retrying", "error", err, "backoff", s.backoff)
			if err := sleep(ctx, s.backoff); err != nil {
				return err
			}
			continue
		}

		s.setConn(conn)
		// A Conn may block in Recv without watching ctx, so cancellation
		// must reach it by closing the connection out from under the read.
		watchDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-watchDone:
			}
		}()
		err = s.receiveLoop(ctx, conn)
		close(watchDone)
		s.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("Stream connection lost, reconnecting", "error", err, "backoff", s.backoff)
		if err := sleep(ctx, s.backoff); err != nil {
			return err
		}
	}
}

func (s *Supervisor) receiveLoop(ctx context.Context, conn Conn) error {
	for {
		payload, err := conn.Recv(ctx)
		if err != nil {
			return err
		}
		s.mu.RLock()
		handler := s.handler
		s.mu.RUnlock()
		if handler == nil {
			continue
		}
		handler(payload)
	}
}

// Send writes one payload over the live connection, retrying a fixed number
// of times with a fixed delay. Without a live connection the attempt counts
// as a failure and is retried, which covers short reconnect windows.
func (s *Supervisor) Send(ctx context.Context, payload []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "send rate limit")
	}

	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, s.delay); err != nil {
				return err
			}
		}

		conn := s.currentConn()
		if conn == nil {
			lastErr = errors.New("no live connection")
			continue
		}
		if err := conn.Send(ctx, payload); err != nil {
			lastErr = err
			s.logger.Warn("Send attempt failed", "attempt", attempt+1, "error", err)
			continue
		}
		return nil
	}
	return errors.Wrapf(lastErr, "send failed after %d attempts", s.retries)
}

func (s *Supervisor) setConn(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *Supervisor) currentConn() Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
