// Package engine defines the fixed contract between the advisory bridge and an
// external satellite classification engine.
//
// A classification engine is reached through a Runtime (an embedded
// interpreter, an in-process function table, or a remote service). The
// runtime imports one Module, which exposes up to five named entry points.
// Every Result returned by a call is owned by the caller and must be released
// exactly once.
package engine

import (
	"context"
	"errors"
)

// #region entry-points

// EntryPoint names one function exposed by a classification module.
type EntryPoint string

const (
	CheckSat  EntryPoint = "check_sat"
	CheckVS   EntryPoint = "check_vs"
	StoreInfo EntryPoint = "store_info"
	SaveInfo  EntryPoint = "save_info"
	GetVal    EntryPoint = "get_val"
)

// EntryPoints lists every entry point the bridge resolves, in resolution order.
var EntryPoints = []EntryPoint{CheckSat, CheckVS, StoreInfo, SaveInfo, GetVal}

// Valid reports whether ep is one of the five known entry points.
func (ep EntryPoint) Valid() bool {
	for _, known := range EntryPoints {
		if ep == known {
			return true
		}
	}
	return false
}

// #endregion entry-points

// #region errors

var (
	// ErrModuleNotFound is returned by Runtime.Import when the module cannot be located.
	ErrModuleNotFound = errors.New("module not found")
	// ErrNotStarted is returned when a runtime is used before Start.
	ErrNotStarted = errors.New("runtime not started")
)

// #endregion errors

// #region interfaces

// Runtime hosts classification modules.
type Runtime interface {
	// Start brings the runtime up. It is called once per process.
	Start(ctx context.Context) error
	// Import loads a module after appending searchPaths to the runtime's
	// module resolution path.
	Import(ctx context.Context, module string, searchPaths []string) (Module, error)
	// Close tears the runtime down.
	Close() error
}

// Module is a loaded classification module.
type Module interface {
	// Lookup resolves an entry point. ok is false when the attribute is
	// missing or is not callable.
	Lookup(ep EntryPoint) (c Callable, ok bool)
	// Close releases the module handle.
	Close() error
}

// Callable is a resolved entry point handle.
type Callable interface {
	// Call invokes the entry point synchronously. On success the returned
	// Result is owned by the caller.
	Call(ctx context.Context, args ...Value) (Result, error)
	// Release drops the handle.
	Release()
}

// Result is an owned foreign return value.
type Result interface {
	Int() (int64, error)
	Float() (float64, error)
	// Release returns the value to the runtime. It must be called exactly once.
	Release()
}

// #endregion interfaces
