package advisor

import (
	"errors"
	"log/slog"

	"github.com/gnssanalyze/rtk-advisor/internal/bridge"
	"github.com/gnssanalyze/rtk-advisor/internal/logging"
)

// #region operations

// Operation names one facade function.
type Operation string

const (
	OpCoefficient Operation = "get_coefficient"
	OpIsNLOS      Operation = "is_nlos"
	OpIsVirtual   Operation = "is_virtual_satellite"
	OpStoreInfo   Operation = "store_info"
	OpSaveInfo    Operation = "save_info"
)

// Safe defaults returned whenever the engine cannot answer.
const (
	DefaultCoefficient = 1.0
	DefaultNLOS        = false
	DefaultVirtual     = false
	DefaultStoreAck    = false
)

// #endregion operations

// #region conditions

// Condition is the reason an answer fell back to its default.
type Condition string

const (
	CondUnavailable Condition = "unavailable"
	CondCallFailed  Condition = "call_failed"
	CondOutOfDomain Condition = "out_of_domain"
	CondInvalidKey  Condition = "invalid_key"
	CondShutDown    Condition = "shut_down"
)

// fallbackLevel is the log level of each fallback condition. Unavailable
// entry points are announced once at initialization, so per-call fallbacks
// for them stay at trace.
var fallbackLevel = map[Condition]slog.Level{
	CondUnavailable: logging.LevelTrace,
	CondCallFailed:  slog.LevelDebug,
	CondOutOfDomain: slog.LevelDebug,
	CondInvalidKey:  slog.LevelWarn,
	CondShutDown:    slog.LevelError,
}

// classify maps a marshaler error onto a fallback condition.
func classify(err error) Condition {
	switch {
	case errors.Is(err, bridge.ErrShutDown), errors.Is(err, bridge.ErrNotReady):
		return CondShutDown
	case errors.Is(err, bridge.ErrUnavailable):
		return CondUnavailable
	default:
		return CondCallFailed
	}
}

// #endregion conditions
