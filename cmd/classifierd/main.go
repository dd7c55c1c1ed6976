package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"github.com/gnssanalyze/rtk-advisor/internal/catalog"
	"github.com/gnssanalyze/rtk-advisor/internal/codec"
	"github.com/gnssanalyze/rtk-advisor/internal/engine/table"
	"github.com/gnssanalyze/rtk-advisor/internal/logging"
)

// #region main
func main() {
	addr := flag.String("addr", envOr("ADVISOR_ADDR", "localhost:50061"), "listen address")
	dbPath := flag.String("db", envOr("ADVISOR_DB", "advisor.db"), "path to advisor.db")
	module := flag.String("module", envOr("ADVISOR_MODULE", "asset"), "module name served")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, *addr, *dbPath, *module, log); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region serve

// serve exposes the catalog engine for one run until ctx is cancelled.
func serve(ctx context.Context, addr, dbPath, module string, log logging.Logger) error {
	store, err := catalog.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	run, err := store.BeginRun("")
	if err != nil {
		return err
	}

	rt := table.New()
	rt.Register(module, catalog.NewEngine(store, run.RunID).Functions())
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer rt.Close()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	gs := grpc.NewServer()
	srv := codec.NewServer(rt, log)
	codec.RegisterClassifierServer(gs, srv)
	defer srv.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()
	log.Info(ctx, "classifier listening",
		logging.String("addr", lis.Addr().String()),
		logging.String("module", module),
		logging.String("run_id", run.RunID),
	)

	status := 0
	select {
	case <-ctx.Done():
		gs.GracefulStop()
	case err = <-errCh:
		status = -1
	}
	if ferr := store.FinishRun(run.RunID, status); ferr != nil {
		log.Warn(ctx, "finish run", logging.Err(ferr))
	}
	log.Info(ctx, "classifier stopped")
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// #endregion serve

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
