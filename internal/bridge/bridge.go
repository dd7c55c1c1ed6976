// Package bridge owns the classification runtime for one positioning run and
// marshals calls into its entry points.
//
// A Bridge moves through three phases: Uninitialized, Ready and ShutDown.
// Entry points are resolved once by Initialize and never change afterwards.
// Calls are serialized: at most one call is in flight at any time.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gnssanalyze/rtk-advisor/internal/engine"
	"github.com/gnssanalyze/rtk-advisor/internal/logging"
	"github.com/gnssanalyze/rtk-advisor/internal/observability"
)

// #region phase

// Phase is the lifecycle state of a Bridge.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseReady
	PhaseShutDown
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseShutDown:
		return "shut_down"
	default:
		return "uninitialized"
	}
}

// #endregion phase

// #region bridge-struct

// Bridge holds the runtime, module and entry point handles.
type Bridge struct {
	mu sync.Mutex

	runtime engine.Runtime
	module  engine.Module
	entries map[engine.EntryPoint]engine.Callable
	phase   Phase
	initErr error

	log     logging.Logger
	metrics *observability.AdvisorCollector
	timeout time.Duration
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the diagnostic logger.
func WithLogger(l logging.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *observability.AdvisorCollector) Option {
	return func(b *Bridge) { b.metrics = c }
}

// WithCallTimeout bounds every engine call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

func newBridge(opts []Option) *Bridge {
	b := &Bridge{
		entries: make(map[engine.EntryPoint]engine.Callable),
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// #endregion bridge-struct

// #region initialize

// Initialize starts rt, imports module with searchPaths appended to the
// runtime's resolution path and resolves the five entry points. A missing or
// non-callable entry point only downgrades that capability.
//
// If the runtime cannot start or the module cannot be imported, Initialize
// returns a disabled Bridge together with an error wrapping
// ErrRuntimeUnavailable. The disabled Bridge is Ready with every entry point
// absent, so every advisory call falls back to its default.
func Initialize(ctx context.Context, rt engine.Runtime, module string, searchPaths []string, opts ...Option) (*Bridge, error) {
	b := newBridge(opts)

	if rt == nil {
		return b.disable(ctx, fmt.Errorf("%w: no runtime configured", ErrRuntimeUnavailable))
	}
	if err := rt.Start(ctx); err != nil {
		return b.disable(ctx, fmt.Errorf("%w: start runtime: %v", ErrRuntimeUnavailable, err))
	}
	b.runtime = rt

	mod, err := rt.Import(ctx, module, searchPaths)
	if err != nil {
		return b.disable(ctx, fmt.Errorf("%w: import %s: %v", ErrRuntimeUnavailable, module, err))
	}
	b.module = mod
	b.log.Info(ctx, "classification module loaded", logging.String("module", module))

	for _, ep := range engine.EntryPoints {
		c, ok := mod.Lookup(ep)
		if ok && c != nil {
			b.entries[ep] = c
			b.log.Info(ctx, "entry point resolved", logging.String("entry_point", string(ep)))
		} else {
			b.log.Info(ctx, "entry point unavailable", logging.String("entry_point", string(ep)))
		}
		b.metrics.SetAvailable(string(ep), ok && c != nil)
	}

	b.phase = PhaseReady
	return b, nil
}

// disable tears down whatever was started and leaves an empty, Ready bridge.
func (b *Bridge) disable(ctx context.Context, err error) (*Bridge, error) {
	if b.runtime != nil {
		if cerr := b.runtime.Close(); cerr != nil {
			b.log.Warn(ctx, "runtime close after failed import", logging.Err(cerr))
		}
		b.runtime = nil
	}
	for _, ep := range engine.EntryPoints {
		b.metrics.SetAvailable(string(ep), false)
	}
	b.initErr = err
	b.phase = PhaseReady
	b.log.Info(ctx, "advisory disabled for this run", logging.Err(err))
	return b, err
}

// #endregion initialize

// #region accessors

// IsAvailable reports whether ep resolved to a callable.
func (b *Bridge) IsAvailable(ep engine.EntryPoint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase != PhaseReady {
		return false
	}
	_, ok := b.entries[ep]
	return ok
}

// Disabled reports whether Initialize failed and the bridge runs without an engine.
func (b *Bridge) Disabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initErr != nil
}

// Phase returns the current lifecycle phase.
func (b *Bridge) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// #endregion accessors

// #region shutdown

// Shutdown releases every entry point handle, then the module handle, then the
// runtime, and moves the bridge to PhaseShutDown. A second call returns
// ErrShutDown.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.phase {
	case PhaseShutDown:
		return ErrShutDown
	case PhaseUninitialized:
		return ErrNotReady
	}

	for _, ep := range engine.EntryPoints {
		if c, ok := b.entries[ep]; ok {
			c.Release()
		}
	}
	b.entries = nil

	var errs []error
	if b.module != nil {
		if err := b.module.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close module: %w", err))
		}
		b.module = nil
	}
	if b.runtime != nil {
		if err := b.runtime.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close runtime: %w", err))
		}
		b.runtime = nil
	}

	b.phase = PhaseShutDown
	b.log.Info(ctx, "advisory bridge shut down")
	return errors.Join(errs...)
}

// #endregion shutdown
