package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gnssanalyze/rtk-advisor/internal/catalog"
	"github.com/gnssanalyze/rtk-advisor/internal/logging"
)

func TestServe_StopsOnCancel(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "advisor.db")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := serve(ctx, "127.0.0.1:0", dbPath, "asset", logging.Noop()); err != nil {
		t.Fatalf("serve: %v", err)
	}

	store, err := catalog.NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	runs, _ := store.ListRuns(1)
	if len(runs) != 1 || !runs[0].Finished || runs[0].Status != 0 {
		t.Errorf("runs = %+v", runs)
	}
}
