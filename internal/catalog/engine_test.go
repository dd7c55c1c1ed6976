package catalog

import (
	"context"
	"testing"

	"github.com/gnssanalyze/rtk-advisor/internal/advisor"
	"github.com/gnssanalyze/rtk-advisor/internal/bridge"
	"github.com/gnssanalyze/rtk-advisor/internal/engine"
	"github.com/gnssanalyze/rtk-advisor/internal/engine/table"
	"github.com/gnssanalyze/rtk-advisor/internal/gnsstime"
)

// #region helpers
func seeded(t *testing.T) (*Store, Run) {
	t.Helper()
	s := tempDB(t)
	err := s.UpsertFlags([]Flag{
		{SatID: "G05", Week: 2200, TOW: 345600, NLOS: true, Coefficient: 4},
		{SatID: "G31", Week: AllEpochs, Virtual: true},
		{SatID: "R12", Week: AllEpochs, Coefficient: 1},
	})
	if err != nil {
		t.Fatalf("UpsertFlags: %v", err)
	}
	run, err := s.BeginRun("")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	return s, run
}

func call(t *testing.T, fn table.Func, args ...engine.Value) engine.Value {
	t.Helper()
	v, err := fn(context.Background(), args)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	return v
}

// #endregion helpers

// #region entry-point-tests
func TestEngine_Lookups(t *testing.T) {
	s, run := seeded(t)
	fns := NewEngine(s, run.RunID).Functions()
	g05 := []engine.Value{engine.String("G05"), engine.Int(2200), engine.Int(345600)}

	if v := call(t, fns[engine.CheckSat], g05...); v.Num != 1 {
		t.Errorf("check_sat = %v, want 1", v)
	}
	if v := call(t, fns[engine.GetVal], g05...); v.Real != 4 {
		t.Errorf("get_val = %v, want 4", v)
	}
	if v := call(t, fns[engine.CheckVS], engine.String("G31"), engine.Int(2200), engine.Int(0)); v.Num != 1 {
		t.Errorf("check_vs = %v, want 1", v)
	}
	if v := call(t, fns[engine.CheckSat], engine.String("E01"), engine.Int(2200), engine.Int(0)); v.Num != 0 {
		t.Errorf("unknown check_sat = %v, want 0", v)
	}
	if v := call(t, fns[engine.GetVal], engine.String("E01"), engine.Int(2200), engine.Int(0)); v.Real != 1 {
		t.Errorf("unknown get_val = %v, want 1", v)
	}
}

func TestEngine_BadArguments(t *testing.T) {
	s, run := seeded(t)
	fns := NewEngine(s, run.RunID).Functions()

	if _, err := fns[engine.CheckSat](context.Background(), []engine.Value{engine.String("G05")}); err == nil {
		t.Error("expected arity error")
	}
	if _, err := fns[engine.CheckSat](context.Background(), []engine.Value{engine.Int(5), engine.Int(2200), engine.Int(0)}); err == nil {
		t.Error("expected type error")
	}
	if _, err := fns[engine.StoreInfo](context.Background(), []engine.Value{engine.Int(2200), engine.Float(1), engine.Int(3), engine.String("v")}); err == nil {
		t.Error("expected key type error")
	}
}

func TestEngine_StoreInfoBuffersUntilSave(t *testing.T) {
	s, run := seeded(t)
	e := NewEngine(s, run.RunID)
	fns := e.Functions()

	v := call(t, fns[engine.StoreInfo], engine.Int(2200), engine.Float(345600.5), engine.String("excluded"), engine.String("G05"))
	if v.Num != 1 {
		t.Fatalf("store_info = %v, want 1", v)
	}
	if e.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", e.Pending())
	}
	if recs, _ := s.ListInfo(run.RunID); len(recs) != 0 {
		t.Fatal("info should not be persisted before save_info")
	}

	call(t, fns[engine.SaveInfo])
	if e.Pending() != 0 {
		t.Errorf("pending after save = %d", e.Pending())
	}
	recs, _ := s.ListInfo(run.RunID)
	if len(recs) != 1 || recs[0].TOW != 345600.5 || recs[0].Value != "G05" {
		t.Errorf("unexpected records %+v", recs)
	}
}

func TestEngine_SaveFailureKeepsPending(t *testing.T) {
	s, _ := seeded(t)
	e := NewEngine(s, "no-such-run")
	fns := e.Functions()

	call(t, fns[engine.StoreInfo], engine.Int(2200), engine.Float(0), engine.String("k"), engine.String("v"))
	if _, err := fns[engine.SaveInfo](context.Background(), nil); err == nil {
		t.Fatal("expected save failure")
	}
	if e.Pending() != 1 {
		t.Errorf("pending = %d, want 1", e.Pending())
	}
}

// #endregion entry-point-tests

// #region advisor-tests
func TestEngine_ThroughAdvisor(t *testing.T) {
	s, run := seeded(t)
	rt := table.New()
	rt.Register("asset", NewEngine(s, run.RunID).Functions())

	ctx := context.Background()
	b, err := bridge.Initialize(ctx, rt, "asset", []string{"."})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	a := advisor.New(b, advisor.WithRecorder(NewAuditLog(s, run.RunID)))

	g05 := advisor.SatelliteKey{SatID: "G05", Week: 2200, TOW: 345600.2}
	if !a.IsNLOS(ctx, g05) {
		t.Error("G05 should be NLOS")
	}
	if got := a.Coefficient(ctx, g05); got != 4 {
		t.Errorf("Coefficient = %v, want 4", got)
	}
	if !a.IsVirtualSatellite(ctx, advisor.SatelliteKey{SatID: "G31", Week: 2200}) {
		t.Error("G31 should be virtual")
	}
	if !a.StoreInfo(ctx, gnsstime.FromGPST(2200, 345600), "excluded", "G05,G31") {
		t.Error("store_info should acknowledge")
	}
	if err := a.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	recs, _ := s.ListInfo(run.RunID)
	if len(recs) != 1 || recs[0].Value != "G05,G31" {
		t.Errorf("info not flushed by finalize: %+v", recs)
	}
	rows, _ := s.ListDecisions(run.RunID, 100)
	if len(rows) != 4 {
		t.Errorf("audit rows = %d, want 4", len(rows))
	}
}

// #endregion advisor-tests
