package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gnssanalyze/rtk-advisor/internal/advisor"
	"github.com/gnssanalyze/rtk-advisor/internal/bridge"
	"github.com/gnssanalyze/rtk-advisor/internal/catalog"
	"github.com/gnssanalyze/rtk-advisor/internal/codec"
	"github.com/gnssanalyze/rtk-advisor/internal/config"
	"github.com/gnssanalyze/rtk-advisor/internal/engine"
	"github.com/gnssanalyze/rtk-advisor/internal/engine/table"
	"github.com/gnssanalyze/rtk-advisor/internal/logging"
	"github.com/gnssanalyze/rtk-advisor/internal/observability"
	"github.com/gnssanalyze/rtk-advisor/internal/positioning"
)

// #region run

// run executes one positioning run and returns the process status.
func run(args []string, stdout, stderr io.Writer, lookup config.LookupFunc) int {
	c, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return -1
	}

	opts, err := c.buildOptions()
	if err != nil {
		fmt.Fprintf(stderr, "error : %v\n", err)
		return -1
	}
	start, end, err := c.window()
	if err != nil {
		fmt.Fprintf(stderr, "error : %v\n", err)
		return -1
	}
	if len(c.inputs) == 0 {
		fmt.Fprintln(stderr, "error : no input file")
		return -2
	}

	logOut := stderr
	if opts.Solution.TraceLevel > 0 && opts.File.Trace != "" {
		f, err := os.Create(opts.File.Trace)
		if err != nil {
			fmt.Fprintf(stderr, "error : open trace file: %v\n", err)
			return -1
		}
		defer f.Close()
		logOut = f
	}
	log := logging.New(logging.Config{
		Level:  logging.LevelForTrace(opts.Solution.TraceLevel),
		Format: envOr(lookup, "LOG_FORMAT", "text"),
		Output: logOut,
	})
	ctx := context.Background()

	overlay := config.Load(lookup)
	overlay.LogSummary(ctx, log)

	settings, err := config.LoadBridgeSettings(lookup)
	if err != nil {
		log.Error(ctx, "bridge settings", logging.Err(err))
		return -1
	}

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewAdvisorCollector(reg)
	if err != nil {
		log.Error(ctx, "metrics", logging.Err(err))
		return -1
	}
	if c.metricsAddr != "" {
		srv := serveMetrics(ctx, c.metricsAddr, metrics, log)
		defer srv.Close()
	}

	sess, err := openSession(ctx, settings, c.audit, overlay, log)
	if err != nil {
		log.Error(ctx, "classification engine", logging.Err(err))
		return -1
	}
	defer sess.close(ctx)

	b, err := bridge.Initialize(ctx, sess.runtime, settings.Module, settings.SearchPaths,
		bridge.WithLogger(log),
		bridge.WithMetrics(metrics),
		bridge.WithCallTimeout(settings.CallTimeout),
	)
	if err != nil {
		log.Warn(ctx, "advisory engine unavailable, running without it", logging.Err(err))
	}

	advOpts := []advisor.Option{advisor.WithLogger(log), advisor.WithMetrics(metrics)}
	if sess.audit != nil {
		advOpts = append(advOpts, advisor.WithRecorder(sess.audit))
	}
	adv := advisor.New(b, advOpts...)
	defer func() {
		if err := adv.Finalize(ctx); err != nil {
			log.Warn(ctx, "advisory shutdown", logging.Err(err))
		}
	}()

	runner, err := positioning.NewReplayRunner(adv, overlay, log)
	if err != nil {
		log.Error(ctx, "positioning", logging.Err(err))
		return -1
	}
	runner.Stdout = stdout

	status, err := runner.Run(ctx, positioning.Request{
		Start:    start,
		End:      end,
		Interval: c.interval,
		Options:  opts,
		Inputs:   c.inputs,
		Output:   c.output,
	})
	if err != nil {
		log.Error(ctx, "positioning failed", logging.Err(err))
	}
	sess.status = status
	return status
}

// #endregion run

// #region session

// session owns the engine runtime and the optional catalog for one run.
type session struct {
	runtime engine.Runtime
	store   *catalog.Store
	runID   string
	audit   *catalog.AuditLog
	status  int
	log     logging.Logger
}

func openSession(ctx context.Context, settings config.BridgeSettings, audit bool, overlay config.AdvisoryConfig, log logging.Logger) (*session, error) {
	s := &session{log: log}

	if settings.Engine == config.EngineCatalog || audit {
		store, err := catalog.NewStore(settings.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		cfgJSON, _ := json.Marshal(overlaySnapshot(overlay))
		run, err := store.BeginRun(string(cfgJSON))
		if err != nil {
			store.Close()
			return nil, err
		}
		s.store, s.runID = store, run.RunID
		log.Info(ctx, "catalog run started", logging.String("db", settings.DBPath), logging.String("run_id", run.RunID))
	}
	if audit {
		s.audit = catalog.NewAuditLog(s.store, s.runID)
	}

	switch settings.Engine {
	case config.EngineGRPC:
		s.runtime = codec.NewRuntime(settings.Addr)
	case config.EngineCatalog:
		rt := table.New()
		rt.Register(settings.Module, catalog.NewEngine(s.store, s.runID).Functions())
		s.runtime = rt
	case config.EngineNone:
	}
	return s, nil
}

// close stamps the catalog run. The runtime itself is closed by the bridge.
func (s *session) close(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.FinishRun(s.runID, s.status); err != nil {
		s.log.Warn(ctx, "finish catalog run", logging.Err(err))
	}
	s.store.Close()
}

func overlaySnapshot(c config.AdvisoryConfig) map[string]any {
	return map[string]any{
		"nlos_exclude":  c.NLOSExclude.Value,
		"variance_mode": c.VarianceMode.Value,
		"virtual_sat":   c.VirtualSatMode.Value,
		"k":             c.KCoefficient.Value,
		"ar_mode":       c.ARMode.Value.String(),
	}
}

// #endregion session

// #region helpers
func serveMetrics(ctx context.Context, addr string, metrics *observability.AdvisorCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server", logging.Err(err))
		}
	}()
	log.Info(ctx, "metrics listening", logging.String("addr", addr))
	return srv
}

func envOr(lookup config.LookupFunc, key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
