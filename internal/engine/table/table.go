// Package table is an in-process classification runtime: modules are plain Go
// function tables registered by name.
package table

import (
	"context"
	"fmt"
	"sync"

	"github.com/gnssanalyze/rtk-advisor/internal/engine"
)

// #region types

// Func implements one entry point.
type Func func(ctx context.Context, args []engine.Value) (engine.Value, error)

// Functions maps entry point names to their implementations.
type Functions map[engine.EntryPoint]Func

// Runtime holds registered modules. It satisfies engine.Runtime.
type Runtime struct {
	mu          sync.Mutex
	modules     map[string]Functions
	searchPaths []string
	started     bool
}

// #endregion types

// #region constructor

// New creates an empty runtime.
func New() *Runtime {
	return &Runtime{modules: make(map[string]Functions)}
}

// Register makes a module importable under name. Nil functions are treated
// as non-callable attributes.
func (r *Runtime) Register(name string, fns Functions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = fns
}

// #endregion constructor

// #region runtime

func (r *Runtime) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

func (r *Runtime) Import(_ context.Context, name string, searchPaths []string) (engine.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil, engine.ErrNotStarted
	}
	r.searchPaths = append(r.searchPaths, searchPaths...)
	fns, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("import %s: %w", name, engine.ErrModuleNotFound)
	}
	return &module{fns: fns}, nil
}

// SearchPaths returns the accumulated module resolution path.
func (r *Runtime) SearchPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.searchPaths...)
}

func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	return nil
}

// #endregion runtime

// #region module

type module struct {
	fns Functions
}

func (m *module) Lookup(ep engine.EntryPoint) (engine.Callable, bool) {
	fn, ok := m.fns[ep]
	if !ok || fn == nil {
		return nil, false
	}
	return callable(fn), true
}

func (m *module) Close() error { return nil }

type callable Func

func (c callable) Call(ctx context.Context, args ...engine.Value) (engine.Result, error) {
	v, err := c(ctx, args)
	if err != nil {
		return nil, err
	}
	return engine.NewResult(v, nil), nil
}

func (c callable) Release() {}

// #endregion module
