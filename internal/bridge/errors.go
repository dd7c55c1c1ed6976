package bridge

import (
	"errors"
	"fmt"

	"github.com/gnssanalyze/rtk-advisor/internal/engine"
)

// #region sentinels

var (
	// ErrRuntimeUnavailable marks an Initialize failure: the runtime did not
	// start or the module could not be imported. The bridge is disabled.
	ErrRuntimeUnavailable = errors.New("advisory runtime unavailable")
	// ErrUnavailable is the ResolutionUnavailable kind.
	ErrUnavailable = errors.New("entry point unavailable")
	// ErrCallFailed is the CallFailed kind.
	ErrCallFailed = errors.New("entry point call failed")
	// ErrShutDown is returned for any use of the bridge after Shutdown.
	ErrShutDown = errors.New("bridge shut down")
	// ErrNotReady is returned when a bridge is used before Initialize completed.
	ErrNotReady = errors.New("bridge not ready")
)

// #endregion sentinels

// #region call-error

// ErrorKind classifies a marshaled call failure.
type ErrorKind int

const (
	// ResolutionUnavailable: the entry point is missing or not callable.
	ResolutionUnavailable ErrorKind = iota + 1
	// CallFailed: the call raised, timed out, or returned an unconvertible value.
	CallFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ResolutionUnavailable:
		return "unavailable"
	case CallFailed:
		return "call_failed"
	default:
		return "unknown"
	}
}

// CallError reports why one marshaled call produced no value.
type CallError struct {
	EntryPoint engine.EntryPoint
	Kind       ErrorKind
	Reason     string
	Err        error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.EntryPoint, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.EntryPoint, e.Kind, e.Reason)
}

func (e *CallError) Unwrap() error { return e.Err }

// Is matches the kind sentinels so callers can use errors.Is(err, ErrCallFailed).
func (e *CallError) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == ResolutionUnavailable
	case ErrCallFailed:
		return e.Kind == CallFailed
	}
	return false
}

// #endregion call-error
