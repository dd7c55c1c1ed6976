package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gnssanalyze/rtk-advisor/internal/catalog"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to advisor.db")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show single run detail")
	limit := flag.Int("decisions", 50, "max audit rows in run detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/advisor.db [--last N] [--run id] [--decisions N] [--json]")
		os.Exit(2)
	}

	store, err := catalog.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *runID != "" {
		err = runDetailMode(store, *runID, *limit, *jsonOut)
	} else {
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID      string `json:"run_id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Status     *int   `json:"status,omitempty"`
	InfoCount  int    `json:"info_count"`
}

func runListMode(store *catalog.Store, last int, jsonOut bool) error {
	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	// store returns DESC, reverse for chronological
	rows := make([]listRow, len(runs))
	for i, r := range runs {
		info, err := store.ListInfo(r.RunID)
		if err != nil {
			return err
		}
		row := listRow{
			RunID:     r.RunID,
			StartedAt: r.StartedAt.Format(time.RFC3339),
			InfoCount: len(info),
		}
		if r.Finished {
			status := r.Status
			row.FinishedAt = r.FinishedAt.Format(time.RFC3339)
			row.Status = &status
		}
		rows[len(runs)-1-i] = row
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-12s  %-20s  %6s  %5s\n", "Run", "Started", "Status", "Info")
	fmt.Printf("%-12s+-%-20s+-%6s+-%5s\n", "------------", "--------------------", "------", "-----")
	for _, r := range rows {
		status := "-"
		if r.Status != nil {
			status = fmt.Sprintf("%d", *r.Status)
		}
		fmt.Printf("%-12s  %-20s  %6s  %5d\n", shortID(r.RunID), r.StartedAt, status, r.InfoCount)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	RunID     string         `json:"run_id"`
	StartedAt string         `json:"started_at"`
	Config    string         `json:"config,omitempty"`
	Info      []infoRow      `json:"info"`
	Decisions []decisionRow  `json:"decisions"`
	Fallbacks map[string]int `json:"fallbacks"`
}

type infoRow struct {
	Week  int     `json:"week"`
	TOW   float64 `json:"tow"`
	Key   string  `json:"key"`
	Value string  `json:"value"`
}

type decisionRow struct {
	Operation string  `json:"operation"`
	SatID     string  `json:"sat"`
	Week      int     `json:"week"`
	TOW       float64 `json:"tow"`
	Outcome   string  `json:"outcome"`
	Value     string  `json:"value"`
	Reason    string  `json:"reason,omitempty"`
}

func runDetailMode(store *catalog.Store, runID string, limit int, jsonOut bool) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	info, err := store.ListInfo(runID)
	if err != nil {
		return err
	}
	decisions, err := store.ListDecisions(runID, limit)
	if err != nil {
		return err
	}

	out := detailOutput{
		RunID:     run.RunID,
		StartedAt: run.StartedAt.Format(time.RFC3339),
		Config:    run.ConfigJSON,
		Fallbacks: make(map[string]int),
	}
	for _, r := range info {
		out.Info = append(out.Info, infoRow{Week: r.Week, TOW: r.TOW, Key: r.Key, Value: r.Value})
	}
	for _, d := range decisions {
		out.Decisions = append(out.Decisions, decisionRow{
			Operation: d.Operation,
			SatID:     d.SatID,
			Week:      d.Week,
			TOW:       d.TOW,
			Outcome:   d.Outcome,
			Value:     d.Value,
			Reason:    d.Reason,
		})
		if d.Outcome == "fallback" {
			out.Fallbacks[d.Operation]++
		}
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Run:      %s\n", out.RunID)
	fmt.Printf("Started:  %s\n", out.StartedAt)
	fmt.Printf("Config:   %s\n", out.Config)

	fmt.Printf("\nInfo records (%d):\n", len(out.Info))
	for _, r := range out.Info {
		fmt.Printf("  %4d %11.3f  %-10s %s\n", r.Week, r.TOW, r.Key, r.Value)
	}

	fmt.Printf("\nDecisions (last %d):\n", len(out.Decisions))
	for _, d := range out.Decisions {
		fmt.Printf("  %4d %11.3f  %-4s %-21s %-8s %-6s %s\n", d.Week, d.TOW, d.SatID, d.Operation, d.Outcome, d.Value, d.Reason)
	}

	if len(out.Fallbacks) > 0 {
		fmt.Printf("\nFallbacks by operation:\n")
		ops := make([]string, 0, len(out.Fallbacks))
		for op := range out.Fallbacks {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			fmt.Printf("  %-21s %d\n", op, out.Fallbacks[op])
		}
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
