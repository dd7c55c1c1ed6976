package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gnssanalyze/rtk-advisor/internal/engine"
	"github.com/gnssanalyze/rtk-advisor/internal/logging"
)

// #region typed-calls

// CallInt invokes ep and converts its result to an integer.
func (b *Bridge) CallInt(ctx context.Context, ep engine.EntryPoint, args ...engine.Value) (int64, error) {
	return invoke(ctx, b, ep, engine.Result.Int, args)
}

// CallFloat invokes ep and converts its result to a float.
func (b *Bridge) CallFloat(ctx context.Context, ep engine.EntryPoint, args ...engine.Value) (float64, error) {
	return invoke(ctx, b, ep, engine.Result.Float, args)
}

// CallDiscard invokes ep and ignores its result, which is still released.
func (b *Bridge) CallDiscard(ctx context.Context, ep engine.EntryPoint, args ...engine.Value) error {
	_, err := invoke(ctx, b, ep, func(engine.Result) (struct{}, error) { return struct{}{}, nil }, args)
	return err
}

// #endregion typed-calls

// #region invoke

// invoke runs one synchronous call under the bridge lock. The result handle
// is released exactly once on every path after a successful call, including
// when convert fails.
func invoke[T any](ctx context.Context, b *Bridge, ep engine.EntryPoint, convert func(engine.Result) (T, error), args []engine.Value) (T, error) {
	var zero T

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.phase {
	case PhaseShutDown:
		return zero, ErrShutDown
	case PhaseUninitialized:
		return zero, ErrNotReady
	}

	c, ok := b.entries[ep]
	if !ok {
		return zero, &CallError{EntryPoint: ep, Kind: ResolutionUnavailable, Reason: "not resolved"}
	}
	for i, a := range args {
		switch a.Kind {
		case engine.KindString, engine.KindInt, engine.KindFloat:
		default:
			return zero, &CallError{EntryPoint: ep, Kind: CallFailed, Reason: fmt.Sprintf("argument %d has unsupported kind %s", i, a.Kind)}
		}
	}

	callCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := safeCall(callCtx, c, args)
	if err != nil {
		b.metrics.ObserveCall(string(ep), CallFailed.String(), time.Since(start))
		reason := "call raised"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "call timed out"
		}
		return zero, &CallError{EntryPoint: ep, Kind: CallFailed, Reason: reason, Err: err}
	}
	defer res.Release()

	out, err := safeConvert(res, convert)
	if err != nil {
		b.metrics.ObserveCall(string(ep), CallFailed.String(), time.Since(start))
		return zero, &CallError{EntryPoint: ep, Kind: CallFailed, Reason: "result not convertible", Err: err}
	}

	b.metrics.ObserveCall(string(ep), "ok", time.Since(start))
	b.log.Trace(ctx, "engine call", logging.String("entry_point", string(ep)), logging.Any("result", out))
	return out, nil
}

// safeCall keeps engine panics from crossing the bridge.
func safeCall(ctx context.Context, c engine.Callable, args []engine.Value) (res engine.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()

	res, err = c.Call(ctx, args...)
	if err != nil {
		if res != nil {
			res.Release()
		}
		return nil, err
	}
	if res == nil {
		return nil, errors.New("engine returned no result")
	}
	return res, nil
}

// safeConvert keeps panics raised by the engine's result accessors from
// crossing the bridge.
func safeConvert[T any](res engine.Result, convert func(engine.Result) (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			err = fmt.Errorf("result panic: %v", r)
		}
	}()
	return convert(res)
}

// #endregion invoke
