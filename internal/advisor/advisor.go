// Package advisor is the decision facade the positioning engine calls once
// per satellite per epoch. Every function always returns a value: when the
// classification engine cannot answer, the documented safe default is
// returned and a diagnostic is logged.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/gnssanalyze/rtk-advisor/internal/bridge"
	"github.com/gnssanalyze/rtk-advisor/internal/engine"
	"github.com/gnssanalyze/rtk-advisor/internal/gnsstime"
	"github.com/gnssanalyze/rtk-advisor/internal/logging"
	"github.com/gnssanalyze/rtk-advisor/internal/observability"
)

// #region types

// Recorder persists an audit row per answered decision.
type Recorder interface {
	RecordDecision(ctx context.Context, entry logging.DecisionEntry) error
}

// Advisor wraps a Bridge with typed, fail-open decision functions.
type Advisor struct {
	bridge   *bridge.Bridge
	log      logging.Logger
	metrics  *observability.AdvisorCollector
	recorder Recorder

	finalizeOnce sync.Once
	finalizeErr  error
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithLogger sets the diagnostic logger.
func WithLogger(l logging.Logger) Option {
	return func(a *Advisor) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMetrics attaches a metrics collector for fallback counts.
func WithMetrics(c *observability.AdvisorCollector) Option {
	return func(a *Advisor) { a.metrics = c }
}

// WithRecorder enables the decision audit log.
func WithRecorder(r Recorder) Option {
	return func(a *Advisor) { a.recorder = r }
}

// New creates an Advisor over b. The Advisor takes over b's lifecycle:
// Finalize shuts it down.
func New(b *bridge.Bridge, opts ...Option) *Advisor {
	a := &Advisor{bridge: b, log: logging.Noop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// #endregion types

// #region coefficient

// Coefficient returns the variance scaling coefficient for key. The result
// is always > 0; any failure or non-positive answer yields 1.0.
func (a *Advisor) Coefficient(ctx context.Context, key SatelliteKey) float64 {
	if err := key.Validate(); err != nil {
		return fallback(ctx, a, OpCoefficient, key, CondInvalidKey, err, DefaultCoefficient)
	}
	if cond, ok := a.precheck(engine.GetVal); !ok {
		return fallback(ctx, a, OpCoefficient, key, cond, nil, DefaultCoefficient)
	}

	v, err := a.bridge.CallFloat(ctx, engine.GetVal, keyArgs(key)...)
	if err != nil {
		return fallback(ctx, a, OpCoefficient, key, classify(err), err, DefaultCoefficient)
	}
	if !(v > 0) || math.IsInf(v, 0) {
		return fallback(ctx, a, OpCoefficient, key, CondOutOfDomain, fmt.Errorf("coefficient %g is not a positive finite value", v), DefaultCoefficient)
	}

	if v == 1 {
		a.log.Trace(ctx, "get_coefficient line-of-sight", logging.String("sat", key.SatID), logging.Float("coefficient", v))
	} else {
		a.log.Trace(ctx, "get_coefficient non-line-of-sight, scaled", logging.String("sat", key.SatID), logging.Float("coefficient", v))
	}
	a.record(ctx, OpCoefficient, key, "engine", formatFloat(v), "")
	return v
}

// #endregion coefficient

// #region flags

// IsNLOS reports whether key is flagged non-line-of-sight. Failures read as
// line-of-sight.
func (a *Advisor) IsNLOS(ctx context.Context, key SatelliteKey) bool {
	return a.flag(ctx, OpIsNLOS, engine.CheckSat, key, DefaultNLOS)
}

// IsVirtualSatellite reports whether key is flagged as a virtual satellite.
// Failures read as a genuine satellite.
func (a *Advisor) IsVirtualSatellite(ctx context.Context, key SatelliteKey) bool {
	return a.flag(ctx, OpIsVirtual, engine.CheckVS, key, DefaultVirtual)
}

func (a *Advisor) flag(ctx context.Context, op Operation, ep engine.EntryPoint, key SatelliteKey, def bool) bool {
	if err := key.Validate(); err != nil {
		return fallback(ctx, a, op, key, CondInvalidKey, err, def)
	}
	if cond, ok := a.precheck(ep); !ok {
		return fallback(ctx, a, op, key, cond, nil, def)
	}

	n, err := a.bridge.CallInt(ctx, ep, keyArgs(key)...)
	if err != nil {
		return fallback(ctx, a, op, key, classify(err), err, def)
	}

	flagged := n > 0
	a.log.Trace(ctx, string(op), logging.String("sat", key.SatID), logging.Int("result", int(n)))
	a.record(ctx, op, key, "engine", strconv.FormatBool(flagged), "")
	return flagged
}

// #endregion flags

// #region store-info

// StoreInfo writes a diagnostic key/value for the epoch back to the engine.
// The key and epoch are forwarded as given. It returns true only on a positive
// acknowledgement.
func (a *Advisor) StoreInfo(ctx context.Context, epoch gnsstime.Time, key, value string) bool {
	week, tow := epoch.GPST()
	sk := SatelliteKey{SatID: key, Week: week, TOW: tow}
	if cond, ok := a.precheck(engine.StoreInfo); !ok {
		return fallback(ctx, a, OpStoreInfo, sk, cond, nil, DefaultStoreAck)
	}

	n, err := a.bridge.CallInt(ctx, engine.StoreInfo,
		engine.Int(int64(week)), engine.Float(tow), engine.String(key), engine.String(value))
	if err != nil {
		return fallback(ctx, a, OpStoreInfo, sk, classify(err), err, DefaultStoreAck)
	}
	if n <= 0 {
		return fallback(ctx, a, OpStoreInfo, sk, CondOutOfDomain, fmt.Errorf("store_info acknowledged %d", n), DefaultStoreAck)
	}

	a.log.Trace(ctx, "store_info", logging.String("key", key), logging.Int("result", int(n)))
	a.record(ctx, OpStoreInfo, sk, "engine", value, "")
	return true
}

// #endregion store-info

// #region finalize

// Finalize flushes the engine through save_info when it resolved, ignoring
// its value, then shuts the bridge down. Only the first call has an effect;
// later calls return the first result.
func (a *Advisor) Finalize(ctx context.Context) error {
	a.finalizeOnce.Do(func() {
		if a.bridge.IsAvailable(engine.SaveInfo) {
			if err := a.bridge.CallDiscard(ctx, engine.SaveInfo); err != nil {
				a.log.Warn(ctx, "save_info failed", logging.Err(err))
				a.metrics.ObserveFallback(string(OpSaveInfo), string(classify(err)))
			} else {
				a.log.Info(ctx, "classification engine state saved")
			}
		}
		a.finalizeErr = a.bridge.Shutdown(ctx)
	})
	return a.finalizeErr
}

// #endregion finalize

// #region helpers

// precheck rejects calls that cannot reach the engine without touching the
// marshaler.
func (a *Advisor) precheck(ep engine.EntryPoint) (Condition, bool) {
	switch a.bridge.Phase() {
	case bridge.PhaseShutDown, bridge.PhaseUninitialized:
		return CondShutDown, false
	}
	if !a.bridge.IsAvailable(ep) {
		return CondUnavailable, false
	}
	return "", true
}

func fallback[T any](ctx context.Context, a *Advisor, op Operation, key SatelliteKey, cond Condition, err error, def T) T {
	fields := []logging.Field{
		logging.String("operation", string(op)),
		logging.String("sat", key.SatID),
		logging.Int("week", key.Week),
		logging.Float("tow", key.TOW),
		logging.String("condition", string(cond)),
		logging.Any("default", def),
	}
	if err != nil {
		fields = append(fields, logging.Err(err))
	}
	logAt(ctx, a.log, fallbackLevel[cond], "advisory fallback", fields...)
	a.metrics.ObserveFallback(string(op), string(cond))

	reason := string(cond)
	if err != nil {
		reason += ": " + err.Error()
	}
	a.record(ctx, op, key, "fallback", fmt.Sprint(def), reason)
	return def
}

func (a *Advisor) record(ctx context.Context, op Operation, key SatelliteKey, outcome, value, reason string) {
	if a.recorder == nil {
		return
	}
	err := a.recorder.RecordDecision(ctx, logging.DecisionEntry{
		Operation: string(op),
		SatID:     key.SatID,
		Week:      key.Week,
		TOW:       key.TOW,
		Outcome:   outcome,
		Value:     value,
		Reason:    reason,
	})
	if err != nil {
		a.log.Debug(ctx, "decision audit write failed", logging.Err(err))
	}
}

func logAt(ctx context.Context, log logging.Logger, level slog.Level, msg string, fields ...logging.Field) {
	switch {
	case level >= slog.LevelError:
		log.Error(ctx, msg, fields...)
	case level >= slog.LevelWarn:
		log.Warn(ctx, msg, fields...)
	case level >= slog.LevelInfo:
		log.Info(ctx, msg, fields...)
	case level >= slog.LevelDebug:
		log.Debug(ctx, msg, fields...)
	default:
		log.Trace(ctx, msg, fields...)
	}
}

// keyArgs marshals a key as (id, week, tow) with tow truncated to whole seconds.
func keyArgs(key SatelliteKey) []engine.Value {
	return []engine.Value{
		engine.String(key.SatID),
		engine.Int(int64(key.Week)),
		engine.Int(int64(math.Floor(key.TOW))),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// #endregion helpers
