package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nao1215/tabquery/observability"
)

// State is the availability of the volatile engine.
type State int32

const (
	// StateUninitialized means no backend has been requested yet.
	StateUninitialized State = iota
	// StateAvailable means the volatile engine started.
	StateAvailable
	// StateDegraded means the engine failed to start and the fallback
	// interpreter is used for the rest of the process.
	StateDegraded
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateDegraded:
		return "degraded"
	default:
		return "uninitialized"
	}
}

// Opener starts a fresh volatile backend.
type Opener func(ctx context.Context, logger *slog.Logger) (Backend, error)

// OpenerFor returns the opener for a session.engine name.
func OpenerFor(engine string) (Opener, error) {
	switch engine {
	case EngineDuckDB:
		return func(ctx context.Context, logger *slog.Logger) (Backend, error) {
			b, err := OpenDuckDB(ctx, logger)
			if err != nil {
				return nil, err
			}
			return b, nil
		}, nil
	case "sqlite", EngineSQLiteMemory:
		return func(ctx context.Context, logger *slog.Logger) (Backend, error) {
			b, err := OpenSQLiteMemory(ctx, logger)
			if err != nil {
				return nil, err
			}
			return b, nil
		}, nil
	case EngineFallback:
		return Unavailable, nil
	}
	return nil, fmt.Errorf("backend: unknown engine %q", engine)
}

// Unavailable is an Opener that always fails. It forces StateDegraded.
func Unavailable(context.Context, *slog.Logger) (Backend, error) {
	return nil, fmt.Errorf("%w: disabled by configuration", ErrEngineUnavailable)
}

// Selector decides once whether the volatile engine is usable and hands out
// fresh backends accordingly. The decision is never retried.
type Selector struct {
	open   Opener
	logger *slog.Logger
	once   sync.Once
	state  atomic.Int32
}

// NewSelector returns a selector in StateUninitialized.
func NewSelector(open Opener, logger *slog.Logger) *Selector {
	return &Selector{open: open, logger: observability.OrDiscard(logger)}
}

// State returns the current state.
func (s *Selector) State() State {
	return State(s.state.Load())
}

// Open returns a fresh backend: the volatile engine when available,
// otherwise the fallback interpreter. The first call decides the state.
func (s *Selector) Open(ctx context.Context) (Backend, error) {
	var first Backend
	var firstErr error
	s.once.Do(func() {
		first, firstErr = s.open(ctx, s.logger)
		if firstErr != nil {
			s.state.Store(int32(StateDegraded))
			observability.SetEngineDegraded(true)
			s.logger.Warn("volatile engine unavailable, using fallback interpreter", "error", firstErr)
			return
		}
		s.state.Store(int32(StateAvailable))
		observability.SetEngineDegraded(false)
	})
	if firstErr == nil && first != nil {
		return first, nil
	}

	if s.State() == StateDegraded {
		return NewFallback(s.logger), nil
	}
	b, err := s.open(ctx, s.logger)
	if err != nil {
		return nil, fmt.Errorf("open volatile backend: %w", err)
	}
	return b, nil
}
