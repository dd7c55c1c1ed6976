package codec

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/gnssanalyze/rtk-advisor/internal/advisor"
	"github.com/gnssanalyze/rtk-advisor/internal/bridge"
	"github.com/gnssanalyze/rtk-advisor/internal/engine"
	"github.com/gnssanalyze/rtk-advisor/internal/engine/table"
)

// #region helpers
func assetFunctions() table.Functions {
	return table.Functions{
		engine.CheckSat: func(_ context.Context, args []engine.Value) (engine.Value, error) {
			if args[0].Str == "G05" {
				return engine.Int(1), nil
			}
			return engine.Int(0), nil
		},
		engine.GetVal: func(_ context.Context, args []engine.Value) (engine.Value, error) {
			if args[0].Str == "G05" {
				return engine.Float(4), nil
			}
			return engine.Float(1), nil
		},
		engine.StoreInfo: func(_ context.Context, args []engine.Value) (engine.Value, error) {
			return engine.Int(int64(len(args))), nil
		},
		engine.CheckVS: func(context.Context, []engine.Value) (engine.Value, error) {
			return engine.None(), errors.New("classifier not trained")
		},
		engine.SaveInfo: nil,
	}
}

// startServer serves an in-process runtime over bufconn and returns a client
// runtime dialing it.
func startServer(t *testing.T, fns table.Functions) *Runtime {
	t.Helper()
	backing := table.New()
	backing.Register("asset", fns)
	if err := backing.Start(context.Background()); err != nil {
		t.Fatalf("start backing runtime: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	srv := NewServer(backing, nil)
	RegisterClassifierServer(gs, srv)
	go gs.Serve(lis)
	t.Cleanup(func() {
		gs.Stop()
		srv.Close()
	})

	return NewRuntime("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
}

// #endregion helpers

// #region runtime-tests
func TestRuntime_ImportBeforeStart(t *testing.T) {
	rt := NewRuntime("passthrough:///bufnet")
	if _, err := rt.Import(context.Background(), "asset", nil); !errors.Is(err, engine.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestRuntime_ImportListsEntryPoints(t *testing.T) {
	rt := startServer(t, assetFunctions())
	ctx := context.Background()
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rt.Close()

	mod, err := rt.Import(ctx, "asset", []string{"."})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	for _, ep := range []engine.EntryPoint{engine.CheckSat, engine.CheckVS, engine.GetVal, engine.StoreInfo} {
		if _, ok := mod.Lookup(ep); !ok {
			t.Errorf("%s should resolve", ep)
		}
	}
	if _, ok := mod.Lookup(engine.SaveInfo); ok {
		t.Error("nil save_info should not resolve")
	}
}

func TestRuntime_ImportUnknownModule(t *testing.T) {
	rt := startServer(t, assetFunctions())
	ctx := context.Background()
	rt.Start(ctx)
	defer rt.Close()

	_, err := rt.Import(ctx, "missing", nil)
	if !errors.Is(err, engine.ErrModuleNotFound) {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}
}

func TestRuntime_CallRoundTrip(t *testing.T) {
	rt := startServer(t, assetFunctions())
	ctx := context.Background()
	rt.Start(ctx)
	defer rt.Close()

	mod, err := rt.Import(ctx, "asset", nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	c, _ := mod.Lookup(engine.GetVal)
	res, err := c.Call(ctx, engine.String("G05"), engine.Int(2200), engine.Int(345600))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	defer res.Release()
	if f, err := res.Float(); err != nil || f != 4 {
		t.Errorf("get_val = %v, %v; want 4", f, err)
	}

	c, _ = mod.Lookup(engine.StoreInfo)
	res2, err := c.Call(ctx, engine.Int(2200), engine.Float(0.5), engine.String("k"), engine.String("v"))
	if err != nil {
		t.Fatalf("Call store_info: %v", err)
	}
	defer res2.Release()
	if n, _ := res2.Int(); n != 4 {
		t.Errorf("store_info saw %d args, want 4", n)
	}
}

func TestRuntime_RemoteFailure(t *testing.T) {
	rt := startServer(t, assetFunctions())
	ctx := context.Background()
	rt.Start(ctx)
	defer rt.Close()

	mod, _ := rt.Import(ctx, "asset", nil)
	c, _ := mod.Lookup(engine.CheckVS)
	if _, err := c.Call(ctx, engine.String("G31"), engine.Int(2200), engine.Int(0)); !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

func TestRuntime_RemotePanic(t *testing.T) {
	fns := assetFunctions()
	fns[engine.CheckSat] = func(context.Context, []engine.Value) (engine.Value, error) {
		panic("index out of range")
	}
	rt := startServer(t, fns)
	ctx := context.Background()
	rt.Start(ctx)
	defer rt.Close()

	mod, _ := rt.Import(ctx, "asset", nil)
	c, _ := mod.Lookup(engine.CheckSat)
	if _, err := c.Call(ctx, engine.String("G05"), engine.Int(2200), engine.Int(0)); !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

// #endregion runtime-tests

// #region advisor-tests
func TestRuntime_ThroughAdvisor(t *testing.T) {
	rt := startServer(t, assetFunctions())
	ctx := context.Background()

	b, err := bridge.Initialize(ctx, rt, "asset", []string{"."})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	a := advisor.New(b)
	g05 := advisor.SatelliteKey{SatID: "G05", Week: 2200, TOW: 1}

	if !a.IsNLOS(ctx, g05) {
		t.Error("G05 should be NLOS")
	}
	if a.Coefficient(ctx, g05) != 4 {
		t.Error("G05 coefficient should be 4")
	}
	if a.IsVirtualSatellite(ctx, g05) {
		t.Error("failed check_vs should read false")
	}
	if err := a.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

// #endregion advisor-tests

// #region retry-tests
func TestWithRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return status.Error(codes.Unavailable, "connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_MaxRetries(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), time.Millisecond, func() error {
		calls++
		return status.Error(codes.Unavailable, "connection refused")
	})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, maxRetries+1)
	}
}

func TestWithRetry_PermanentNotRetried(t *testing.T) {
	calls := 0
	withRetry(context.Background(), time.Millisecond, func() error {
		calls++
		return status.Error(codes.NotFound, "no module")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

// #endregion retry-tests

// #region wire-tests
func TestValueEncoding(t *testing.T) {
	for _, v := range []engine.Value{
		engine.None(),
		engine.Int(1 << 60),
		engine.Float(345600.25),
		engine.String("G05"),
		engine.Bool(true),
	} {
		got, err := decodeValue(encodeValue(v))
		if err != nil {
			t.Fatalf("decode %v: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %v = %v", v, got)
		}
	}
}

// #endregion wire-tests
