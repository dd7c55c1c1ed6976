// Package enginefake provides an instrumented engine.Runtime for tests. It
// counts result acquisitions and releases and records teardown order.
package enginefake

import (
	"context"
	"sync"
	"time"

	"github.com/gnssanalyze/rtk-advisor/internal/engine"
)

// Reply scripts the outcome of one entry point.
type Reply struct {
	Value engine.Value
	Err   error
	Panic any
	// ResultPanic makes the returned result's Int and Float accessors panic.
	ResultPanic any
	Delay       time.Duration
	// Fn, when set, computes the value from the call arguments.
	Fn func(args []engine.Value) (engine.Value, error)
}

// Runtime is a scripted engine.Runtime.
type Runtime struct {
	StartErr  error
	ImportErr error
	// Entries lists the callable entry points of the single importable module.
	Entries map[engine.EntryPoint]Reply

	mu       sync.Mutex
	starts   int
	closes   int
	acquired int
	released int
	calls    map[engine.EntryPoint]int
	args     map[engine.EntryPoint][][]engine.Value
	teardown []string
	imported []string
}

// New returns a runtime whose module exposes entries.
func New(entries map[engine.EntryPoint]Reply) *Runtime {
	return &Runtime{Entries: entries}
}

func (r *Runtime) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return r.StartErr
}

func (r *Runtime) Import(_ context.Context, module string, _ []string) (engine.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imported = append(r.imported, module)
	if r.ImportErr != nil {
		return nil, r.ImportErr
	}
	return &fakeModule{rt: r}, nil
}

func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	r.teardown = append(r.teardown, "runtime")
	return nil
}

// Starts reports how many times Start ran.
func (r *Runtime) Starts() int { r.mu.Lock(); defer r.mu.Unlock(); return r.starts }

// Closes reports how many times Close ran.
func (r *Runtime) Closes() int { r.mu.Lock(); defer r.mu.Unlock(); return r.closes }

// Acquired reports how many results were handed out.
func (r *Runtime) Acquired() int { r.mu.Lock(); defer r.mu.Unlock(); return r.acquired }

// Released reports how many Release calls results received.
func (r *Runtime) Released() int { r.mu.Lock(); defer r.mu.Unlock(); return r.released }

// Calls reports how many times ep was invoked.
func (r *Runtime) Calls(ep engine.EntryPoint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[ep]
}

// Args returns the argument lists ep was invoked with.
func (r *Runtime) Args(ep engine.EntryPoint) [][]engine.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]engine.Value(nil), r.args[ep]...)
}

// Teardown returns the release order of handles, e.g. "entry:check_sat",
// "module", "runtime".
func (r *Runtime) Teardown() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.teardown...)
}

type fakeModule struct {
	rt *Runtime
}

func (m *fakeModule) Lookup(ep engine.EntryPoint) (engine.Callable, bool) {
	if _, ok := m.rt.Entries[ep]; !ok {
		return nil, false
	}
	return &fakeCallable{rt: m.rt, ep: ep}, true
}

func (m *fakeModule) Close() error {
	m.rt.mu.Lock()
	defer m.rt.mu.Unlock()
	m.rt.teardown = append(m.rt.teardown, "module")
	return nil
}

type fakeCallable struct {
	rt *Runtime
	ep engine.EntryPoint
}

func (c *fakeCallable) Call(ctx context.Context, args ...engine.Value) (engine.Result, error) {
	r := c.rt
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[engine.EntryPoint]int)
		r.args = make(map[engine.EntryPoint][][]engine.Value)
	}
	r.calls[c.ep]++
	r.args[c.ep] = append(r.args[c.ep], append([]engine.Value(nil), args...))
	reply := r.Entries[c.ep]
	r.mu.Unlock()

	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if reply.Panic != nil {
		panic(reply.Panic)
	}

	v, err := reply.Value, reply.Err
	if reply.Fn != nil {
		v, err = reply.Fn(args)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.acquired++
	r.mu.Unlock()
	res := engine.NewResult(v, func() {
		r.mu.Lock()
		r.released++
		r.mu.Unlock()
	})
	if reply.ResultPanic != nil {
		return &panickingResult{ValueResult: res, cause: reply.ResultPanic}, nil
	}
	return res, nil
}

type panickingResult struct {
	*engine.ValueResult
	cause any
}

func (p *panickingResult) Int() (int64, error)     { panic(p.cause) }
func (p *panickingResult) Float() (float64, error) { panic(p.cause) }

func (c *fakeCallable) Release() {
	c.rt.mu.Lock()
	defer c.rt.mu.Unlock()
	c.rt.teardown = append(c.rt.teardown, "entry:"+string(c.ep))
}
