package bridge

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gnssanalyze/rtk-advisor/internal/engine"
	"github.com/gnssanalyze/rtk-advisor/internal/engine/enginefake"
	"github.com/gnssanalyze/rtk-advisor/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// #region helpers
func allEntries() map[engine.EntryPoint]enginefake.Reply {
	return map[engine.EntryPoint]enginefake.Reply{
		engine.CheckSat:  {Value: engine.Int(1)},
		engine.CheckVS:   {Value: engine.Int(0)},
		engine.StoreInfo: {Value: engine.Int(1)},
		engine.SaveInfo:  {Value: engine.None()},
		engine.GetVal:    {Value: engine.Float(2.5)},
	}
}

func mustInit(t *testing.T, rt engine.Runtime, opts ...Option) *Bridge {
	t.Helper()
	b, err := Initialize(context.Background(), rt, "asset", []string{"."}, opts...)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return b
}

// #endregion helpers

// #region initialize-tests
func TestInitialize_ResolvesAllEntryPoints(t *testing.T) {
	rt := enginefake.New(allEntries())
	b := mustInit(t, rt)

	if b.Phase() != PhaseReady {
		t.Fatalf("phase = %s, want ready", b.Phase())
	}
	if b.Disabled() {
		t.Error("bridge should not be disabled")
	}
	for _, ep := range engine.EntryPoints {
		if !b.IsAvailable(ep) {
			t.Errorf("%s should be available", ep)
		}
	}
	if rt.Starts() != 1 {
		t.Errorf("runtime started %d times, want 1", rt.Starts())
	}
}

func TestInitialize_MissingEntryPointIsDowngrade(t *testing.T) {
	entries := allEntries()
	delete(entries, engine.SaveInfo)
	delete(entries, engine.GetVal)
	b := mustInit(t, enginefake.New(entries))

	if b.IsAvailable(engine.SaveInfo) || b.IsAvailable(engine.GetVal) {
		t.Error("missing entry points should be unavailable")
	}
	if !b.IsAvailable(engine.CheckSat) {
		t.Error("check_sat should stay available")
	}
}

func TestInitialize_ImportFailureDisables(t *testing.T) {
	rt := enginefake.New(allEntries())
	rt.ImportErr = engine.ErrModuleNotFound

	b, err := Initialize(context.Background(), rt, "asset", nil)
	if !errors.Is(err, ErrRuntimeUnavailable) {
		t.Fatalf("expected ErrRuntimeUnavailable, got %v", err)
	}
	if b == nil {
		t.Fatal("expected disabled bridge, got nil")
	}
	if !b.Disabled() {
		t.Error("bridge should report disabled")
	}
	for _, ep := range engine.EntryPoints {
		if b.IsAvailable(ep) {
			t.Errorf("%s should be unavailable on a disabled bridge", ep)
		}
	}
	if rt.Closes() != 1 {
		t.Errorf("runtime should be closed after failed import, closes=%d", rt.Closes())
	}
	if err := b.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown of disabled bridge: %v", err)
	}
	if rt.Closes() != 1 {
		t.Errorf("runtime closed again on shutdown, closes=%d", rt.Closes())
	}
}

func TestInitialize_StartFailureDisables(t *testing.T) {
	rt := enginefake.New(allEntries())
	rt.StartErr = errors.New("interpreter failed")

	b, err := Initialize(context.Background(), rt, "asset", nil)
	if !errors.Is(err, ErrRuntimeUnavailable) {
		t.Fatalf("expected ErrRuntimeUnavailable, got %v", err)
	}
	if _, err := b.CallInt(context.Background(), engine.CheckSat, engine.String("G01")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable from disabled bridge, got %v", err)
	}
	if rt.Calls(engine.CheckSat) != 0 {
		t.Error("engine must not be called when disabled")
	}
}

func TestInitialize_NilRuntime(t *testing.T) {
	b, err := Initialize(context.Background(), nil, "asset", nil)
	if !errors.Is(err, ErrRuntimeUnavailable) {
		t.Fatalf("expected ErrRuntimeUnavailable, got %v", err)
	}
	if !b.Disabled() {
		t.Error("expected disabled bridge")
	}
}

func TestInitialize_RecordsAvailabilityMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewAdvisorCollector(reg)
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	entries := allEntries()
	delete(entries, engine.CheckVS)
	mustInit(t, enginefake.New(entries), WithMetrics(collector))

	if got := testutil.ToFloat64(collector.EntryAvailable.WithLabelValues("check_sat")); got != 1 {
		t.Errorf("check_sat available = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.EntryAvailable.WithLabelValues("check_vs")); got != 0 {
		t.Errorf("check_vs available = %v, want 0", got)
	}
}

// #endregion initialize-tests

// #region marshal-tests
func TestCallInt_Success(t *testing.T) {
	rt := enginefake.New(allEntries())
	b := mustInit(t, rt)

	v, err := b.CallInt(context.Background(), engine.CheckSat, engine.String("G05"), engine.Int(2200), engine.Int(345600))
	if err != nil {
		t.Fatalf("CallInt: %v", err)
	}
	if v != 1 {
		t.Errorf("CallInt = %d, want 1", v)
	}
	args := rt.Args(engine.CheckSat)
	want := []engine.Value{engine.String("G05"), engine.Int(2200), engine.Int(345600)}
	if len(args) != 1 || !reflect.DeepEqual(args[0], want) {
		t.Errorf("args = %v, want %v", args, want)
	}
}

func TestCall_ReleasesExactlyOncePerSuccessfulCall(t *testing.T) {
	entries := allEntries()
	entries[engine.CheckVS] = enginefake.Reply{Value: engine.String("not an int")}
	entries[engine.GetVal] = enginefake.Reply{Value: engine.Float(0)}
	rt := enginefake.New(entries)
	b := mustInit(t, rt)
	ctx := context.Background()

	successes := 0
	for i := 0; i < 5; i++ {
		if _, err := b.CallInt(ctx, engine.CheckSat, engine.String("G05")); err == nil {
			successes++
		}
		// conversion failure still consumes the result
		if _, err := b.CallInt(ctx, engine.CheckVS, engine.String("G05")); !errors.Is(err, ErrCallFailed) {
			t.Fatalf("expected ErrCallFailed on conversion, got %v", err)
		}
		if _, err := b.CallFloat(ctx, engine.GetVal, engine.String("R12")); err == nil {
			successes++
		}
		if err := b.CallDiscard(ctx, engine.SaveInfo); err == nil {
			successes++
		}
	}

	if rt.Acquired() != rt.Released() {
		t.Fatalf("acquired %d results but released %d", rt.Acquired(), rt.Released())
	}
	if rt.Acquired() != successes+5 {
		t.Errorf("acquired = %d, want %d", rt.Acquired(), successes+5)
	}
}

func TestCall_ErrorIsCallFailed(t *testing.T) {
	entries := allEntries()
	entries[engine.CheckSat] = enginefake.Reply{Err: errors.New("KeyError: G99")}
	rt := enginefake.New(entries)
	b := mustInit(t, rt)

	_, err := b.CallInt(context.Background(), engine.CheckSat, engine.String("G99"))
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed, got %v", err)
	}
	var ce *CallError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CallError, got %T", err)
	}
	if ce.EntryPoint != engine.CheckSat || ce.Kind != CallFailed {
		t.Errorf("unexpected call error %+v", ce)
	}
	if rt.Acquired() != 0 || rt.Released() != 0 {
		t.Errorf("failed call must not produce a result: acquired=%d released=%d", rt.Acquired(), rt.Released())
	}
}

func TestCall_PanicIsContained(t *testing.T) {
	entries := allEntries()
	entries[engine.GetVal] = enginefake.Reply{Panic: "segfault in model"}
	b := mustInit(t, enginefake.New(entries))

	_, err := b.CallFloat(context.Background(), engine.GetVal, engine.String("R12"))
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed from panic, got %v", err)
	}
}

func TestCall_ResultAccessorPanicIsContained(t *testing.T) {
	entries := allEntries()
	entries[engine.CheckSat] = enginefake.Reply{Value: engine.Int(1), ResultPanic: "conversion blew up"}
	rt := enginefake.New(entries)
	b := mustInit(t, rt)

	_, err := b.CallInt(context.Background(), engine.CheckSat, engine.String("G05"))
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed, got %v", err)
	}
	var ce *CallError
	if !errors.As(err, &ce) || ce.Reason != "result not convertible" {
		t.Errorf("unexpected call error %v", err)
	}
	if rt.Acquired() != 1 || rt.Released() != 1 {
		t.Errorf("acquired=%d released=%d, want 1 and 1", rt.Acquired(), rt.Released())
	}
}

func TestCall_SerializesConcurrentCallers(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	entries := allEntries()
	entries[engine.CheckSat] = enginefake.Reply{Fn: func([]engine.Value) (engine.Value, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return engine.Int(1), nil
	}}
	rt := enginefake.New(entries)
	b := mustInit(t, rt)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.CallInt(context.Background(), engine.CheckSat, engine.String("G05")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("CallInt: %v", err)
	}
	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max calls in flight = %d, want 1", got)
	}
	if rt.Calls(engine.CheckSat) != callers {
		t.Errorf("calls = %d, want %d", rt.Calls(engine.CheckSat), callers)
	}
	if rt.Acquired() != rt.Released() {
		t.Errorf("acquired %d results but released %d", rt.Acquired(), rt.Released())
	}
}

func TestCall_Timeout(t *testing.T) {
	entries := allEntries()
	entries[engine.CheckSat] = enginefake.Reply{Value: engine.Int(1), Delay: time.Second}
	b := mustInit(t, enginefake.New(entries), WithCallTimeout(10*time.Millisecond))

	_, err := b.CallInt(context.Background(), engine.CheckSat, engine.String("G05"))
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
}

func TestCall_UnavailableDoesNotInvoke(t *testing.T) {
	entries := allEntries()
	delete(entries, engine.CheckVS)
	rt := enginefake.New(entries)
	b := mustInit(t, rt)

	_, err := b.CallInt(context.Background(), engine.CheckVS, engine.String("G05"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, ErrCallFailed) {
		t.Error("unavailable must not match ErrCallFailed")
	}
}

func TestCall_RejectsUnsupportedArgument(t *testing.T) {
	rt := enginefake.New(allEntries())
	b := mustInit(t, rt)

	_, err := b.CallInt(context.Background(), engine.CheckSat, engine.None())
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("expected ErrCallFailed, got %v", err)
	}
	if rt.Calls(engine.CheckSat) != 0 {
		t.Error("engine must not be called with an invalid argument")
	}
}

func TestCall_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, _ := observability.NewAdvisorCollector(reg)
	entries := allEntries()
	entries[engine.CheckVS] = enginefake.Reply{Err: errors.New("boom")}
	b := mustInit(t, enginefake.New(entries), WithMetrics(collector))

	b.CallInt(context.Background(), engine.CheckSat, engine.String("G05"))
	b.CallInt(context.Background(), engine.CheckVS, engine.String("G05"))

	if got := testutil.ToFloat64(collector.Calls.WithLabelValues("check_sat", "ok")); got != 1 {
		t.Errorf("check_sat ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Calls.WithLabelValues("check_vs", "call_failed")); got != 1 {
		t.Errorf("check_vs call_failed = %v, want 1", got)
	}
}

// #endregion marshal-tests

// #region shutdown-tests
func TestShutdown_ReleaseOrder(t *testing.T) {
	entries := allEntries()
	delete(entries, engine.StoreInfo)
	rt := enginefake.New(entries)
	b := mustInit(t, rt)

	if err := b.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	want := []string{"entry:check_sat", "entry:check_vs", "entry:save_info", "entry:get_val", "module", "runtime"}
	if got := rt.Teardown(); !reflect.DeepEqual(got, want) {
		t.Errorf("teardown order = %v, want %v", got, want)
	}
	if b.Phase() != PhaseShutDown {
		t.Errorf("phase = %s, want shut_down", b.Phase())
	}
}

func TestShutdown_CallAfterShutdownReported(t *testing.T) {
	rt := enginefake.New(allEntries())
	b := mustInit(t, rt)
	b.Shutdown(context.Background())

	if _, err := b.CallInt(context.Background(), engine.CheckSat, engine.String("G05")); !errors.Is(err, ErrShutDown) {
		t.Fatalf("expected ErrShutDown, got %v", err)
	}
	if b.IsAvailable(engine.CheckSat) {
		t.Error("no entry point is available after shutdown")
	}
	if rt.Calls(engine.CheckSat) != 0 {
		t.Error("stale handle was used after shutdown")
	}
}

func TestShutdown_Twice(t *testing.T) {
	rt := enginefake.New(allEntries())
	b := mustInit(t, rt)

	if err := b.Shutdown(context.Background()); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := b.Shutdown(context.Background()); !errors.Is(err, ErrShutDown) {
		t.Fatalf("expected ErrShutDown, got %v", err)
	}
	if rt.Closes() != 1 {
		t.Errorf("runtime closed %d times, want 1", rt.Closes())
	}
}

// #endregion shutdown-tests
