package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/gnssanalyze/rtk-advisor/internal/engine"
	"github.com/gnssanalyze/rtk-advisor/internal/engine/table"
)

// #region engine

// Engine answers the five entry points from a Store. Info written through
// store_info is buffered until save_info flushes it.
type Engine struct {
	store *Store
	runID string

	mu      sync.Mutex
	pending []InfoRecord
}

// NewEngine binds an engine to one run.
func NewEngine(store *Store, runID string) *Engine {
	return &Engine{store: store, runID: runID}
}

// Functions returns the module table for registration with a table.Runtime.
func (e *Engine) Functions() table.Functions {
	return table.Functions{
		engine.CheckSat:  e.checkSat,
		engine.CheckVS:   e.checkVS,
		engine.GetVal:    e.getVal,
		engine.StoreInfo: e.storeInfo,
		engine.SaveInfo:  e.saveInfo,
	}
}

// Pending reports how many info records await save_info.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// #endregion engine

// #region entry-points

func (e *Engine) checkSat(_ context.Context, args []engine.Value) (engine.Value, error) {
	f, ok, err := e.lookup(engine.CheckSat, args)
	if err != nil || !ok {
		return engine.Int(0), err
	}
	return boolInt(f.NLOS), nil
}

func (e *Engine) checkVS(_ context.Context, args []engine.Value) (engine.Value, error) {
	f, ok, err := e.lookup(engine.CheckVS, args)
	if err != nil || !ok {
		return engine.Int(0), err
	}
	return boolInt(f.Virtual), nil
}

func (e *Engine) getVal(_ context.Context, args []engine.Value) (engine.Value, error) {
	f, ok, err := e.lookup(engine.GetVal, args)
	if err != nil {
		return engine.None(), err
	}
	if !ok {
		return engine.Float(1.0), nil
	}
	return engine.Float(f.Coefficient), nil
}

// storeInfo takes (week int, tow float, key string, value string).
func (e *Engine) storeInfo(_ context.Context, args []engine.Value) (engine.Value, error) {
	if len(args) != 4 {
		return engine.None(), fmt.Errorf("%s: want 4 arguments, got %d", engine.StoreInfo, len(args))
	}
	week, err := args[0].AsInt()
	if err != nil {
		return engine.None(), fmt.Errorf("%s week: %w", engine.StoreInfo, err)
	}
	tow, err := args[1].AsFloat()
	if err != nil {
		return engine.None(), fmt.Errorf("%s tow: %w", engine.StoreInfo, err)
	}
	if args[2].Kind != engine.KindString || args[3].Kind != engine.KindString {
		return engine.None(), fmt.Errorf("%s: key and value must be strings", engine.StoreInfo)
	}

	e.mu.Lock()
	e.pending = append(e.pending, InfoRecord{
		RunID: e.runID,
		Week:  int(week),
		TOW:   tow,
		Key:   args[2].Str,
		Value: args[3].Str,
	})
	e.mu.Unlock()
	return engine.Int(1), nil
}

func (e *Engine) saveInfo(_ context.Context, _ []engine.Value) (engine.Value, error) {
	e.mu.Lock()
	batch := e.pending
	e.pending = nil
	e.mu.Unlock()

	if err := e.store.AppendInfo(batch); err != nil {
		e.mu.Lock()
		e.pending = append(batch, e.pending...)
		e.mu.Unlock()
		return engine.None(), err
	}
	return engine.None(), nil
}

// #endregion entry-points

// #region helpers

// lookup decodes (id string, week int, tow int) and reads the flag row.
func (e *Engine) lookup(ep engine.EntryPoint, args []engine.Value) (Flag, bool, error) {
	if len(args) != 3 {
		return Flag{}, false, fmt.Errorf("%s: want 3 arguments, got %d", ep, len(args))
	}
	if args[0].Kind != engine.KindString {
		return Flag{}, false, fmt.Errorf("%s: satellite id must be a string", ep)
	}
	week, err := args[1].AsInt()
	if err != nil {
		return Flag{}, false, fmt.Errorf("%s week: %w", ep, err)
	}
	tow, err := args[2].AsInt()
	if err != nil {
		return Flag{}, false, fmt.Errorf("%s tow: %w", ep, err)
	}
	return e.store.LookupFlag(args[0].Str, int(week), tow)
}

func boolInt(b bool) engine.Value {
	if b {
		return engine.Int(1)
	}
	return engine.Int(0)
}

// #endregion helpers
