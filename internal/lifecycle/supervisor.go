// Package lifecycle supervises the one-time database connection made at
// process start. A failed connection is fatal: the supervisor logs it and
// exits so the orchestrator can restart the process.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStartupFatal tags the error reported when the startup connection fails.
var ErrStartupFatal = errors.New("startup fatal")

// State is the database side of the process state machine.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Connector opens the shared database connection.
type Connector interface {
	Connect(ctx context.Context) error
}

// Supervisor runs Connector.Connect once, asynchronously.
type Supervisor struct {
	conn    Connector
	logger  *slog.Logger
	timeout time.Duration
	exit    func(code int)

	state    atomic.Int32
	once     sync.Once
	done     chan struct{}
	err      error
	observer func(State)
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithExit replaces os.Exit, which tests need.
func WithExit(exit func(code int)) Option {
	return func(s *Supervisor) { s.exit = exit }
}

// WithTimeout bounds the connection attempt. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.timeout = d }
}

// WithObserver is called on every state transition.
func WithObserver(fn func(State)) Option {
	return func(s *Supervisor) { s.observer = fn }
}

// New returns a Supervisor in StateIdle.
func New(conn Connector, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		conn:   conn,
		logger: logger,
		exit:   os.Exit,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the connection attempt and returns immediately. The HTTP
// listener is not gated on it; see Ready for callers that want to be.
// Subsequent calls are no-ops.
func (s *Supervisor) Start(ctx context.Context) {
	s.once.Do(func() {
		s.setState(StateConnecting)
		go s.run(ctx)
	})
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.conn.Connect(ctx); err != nil {
		s.err = fmt.Errorf("%w: database connection: %w", ErrStartupFatal, err)
		s.setState(StateFailed)
		s.logger.Error("database connection failed", "error", err)
		s.exit(1)
		return
	}
	s.setState(StateConnected)
	s.logger.Info("database connected", "duration", time.Since(start))
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	if s.observer != nil {
		s.observer(st)
	}
}

// State reports the current database state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Ready reports whether the database connection has been established.
func (s *Supervisor) Ready() bool {
	return s.State() == StateConnected
}

// Wait blocks until the attempt finishes or ctx ends, returning the startup
// error if the connection failed.
func (s *Supervisor) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
