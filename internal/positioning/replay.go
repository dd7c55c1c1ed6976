package positioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gnssanalyze/rtk-advisor/internal/advisor"
	"github.com/gnssanalyze/rtk-advisor/internal/config"
	"github.com/gnssanalyze/rtk-advisor/internal/gnsstime"
	"github.com/gnssanalyze/rtk-advisor/internal/logging"
	"github.com/gnssanalyze/rtk-advisor/internal/options"
)

// #region constants

// timeTolerance is the slack, in seconds, applied to start, end and interval
// screening.
const timeTolerance = 0.005

// excludedInfoKey is the store_info key carrying an epoch's excluded satellites.
const excludedInfoKey = "excluded"

// #endregion constants

// #region runner

// ReplayRunner replays recorded observation epochs through the Weigher and
// writes one report line per epoch.
type ReplayRunner struct {
	adv    Advisor
	cfg    config.AdvisoryConfig
	log    logging.Logger
	schema *jsonschema.Schema

	// Stdout receives the report when Request.Output is empty.
	Stdout io.Writer
}

// NewReplayRunner creates a runner consulting adv under cfg.
func NewReplayRunner(adv Advisor, cfg config.AdvisoryConfig, log logging.Logger) (*ReplayRunner, error) {
	schema, err := compileEpochSchema()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Noop()
	}
	return &ReplayRunner{adv: adv, cfg: cfg, log: log, schema: schema, Stdout: os.Stdout}, nil
}

// Run processes every input file. Errors reading or validating input return
// status -1; a successful run returns 0.
func (r *ReplayRunner) Run(ctx context.Context, req Request) (int, error) {
	if len(req.Inputs) == 0 {
		return -1, errors.New("no input file")
	}

	epochs, err := r.load(req.Inputs)
	if err != nil {
		return -1, err
	}
	epochs = screen(epochs, req.Start, req.End, req.Interval)
	if len(epochs) == 0 {
		r.log.Warn(ctx, "no epochs in processing window")
	}

	out := r.Stdout
	if req.Output != "" {
		f, err := os.Create(req.Output)
		if err != nil {
			return -1, fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	w := NewWeigher(r.cfg, req.Options.Processing, r.adv)
	rep := newReporter(out, req.Options.Solution)
	if err := rep.header(req); err != nil {
		return -1, fmt.Errorf("write report: %w", err)
	}

	for _, ep := range epochs {
		if err := ctx.Err(); err != nil {
			return -1, err
		}
		res := r.process(ctx, w, ep)
		if err := rep.epoch(res); err != nil {
			return -1, fmt.Errorf("write report: %w", err)
		}
	}

	r.log.Info(ctx, "positioning finished", logging.Int("epochs", len(epochs)))
	return 0, nil
}

// #endregion runner

// #region process

func (r *ReplayRunner) process(ctx context.Context, w *Weigher, ep Epoch) EpochResult {
	t := ep.Time()
	res := EpochResult{Time: t}
	for _, obs := range ep.Satellites {
		key := advisor.SatelliteKey{SatID: obs.SatID, Week: ep.Week, TOW: ep.TOW}
		d := w.Weigh(ctx, key, obs)
		res.Decisions = append(res.Decisions, d)

		switch {
		case !d.Used:
			res.Excluded = append(res.Excluded, d.SatID)
			r.log.Debug(ctx, "satellite excluded", logging.String("sat", d.SatID), logging.String("reason", d.Reason))
		case !d.InAR:
			res.NonAR = append(res.NonAR, d.SatID)
		}
	}

	if len(res.Excluded) > 0 {
		r.adv.StoreInfo(ctx, t, excludedInfoKey, strings.Join(res.Excluded, ","))
	}
	return res
}

// #endregion process

// #region input

func (r *ReplayRunner) load(paths []string) ([]Epoch, error) {
	var epochs []Epoch
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		f, err := decodeEpochFile(r.schema, raw)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", p, err)
		}
		epochs = append(epochs, f.Epochs...)
	}
	sort.SliceStable(epochs, func(i, j int) bool {
		return epochs[i].Time().Before(epochs[j].Time())
	})
	return epochs, nil
}

// screen keeps epochs inside [start, end] that fall on the interval grid.
func screen(epochs []Epoch, start, end gnsstime.Time, interval float64) []Epoch {
	var out []Epoch
	for _, ep := range epochs {
		t := ep.Time()
		if !start.IsZero() && t.Sub(start).Seconds() < -timeTolerance {
			continue
		}
		if !end.IsZero() && t.Sub(end).Seconds() > timeTolerance {
			continue
		}
		if interval > 0 && math.Mod(ep.TOW+timeTolerance, interval) > 2*timeTolerance {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// #endregion input

// #region report

type reporter struct {
	w   io.Writer
	sol options.Solution
}

func newReporter(w io.Writer, sol options.Solution) *reporter {
	return &reporter{w: w, sol: sol}
}

func (r *reporter) header(req Request) error {
	program := req.Options.Solution.Program
	if program == "" {
		program = "rtk-advisor"
	}
	lines := []string{
		"% program   : " + program,
	}
	for _, in := range req.Inputs {
		lines = append(lines, "% inp file  : "+in)
	}
	cols := []string{"time(" + r.timeLabel() + ")", "nused", "nexcl", "excluded", "non-ar", "scales"}
	lines = append(lines, "% "+strings.Join(cols, r.sol.Separator))
	_, err := fmt.Fprintln(r.w, strings.Join(lines, "\n"))
	return err
}

func (r *reporter) epoch(res EpochResult) error {
	var scales []string
	used := 0
	for _, d := range res.Decisions {
		if !d.Used {
			continue
		}
		used++
		scales = append(scales, fmt.Sprintf("%s:%.3f", d.SatID, d.Scale))
	}
	cols := []string{
		r.timeColumn(res.Time),
		fmt.Sprintf("%3d", used),
		fmt.Sprintf("%3d", len(res.Excluded)),
		listOrDash(res.Excluded),
		listOrDash(res.NonAR),
		listOrDash(scales),
	}
	_, err := fmt.Fprintln(r.w, strings.Join(cols, r.sol.Separator))
	return err
}

func (r *reporter) timeLabel() string {
	if r.sol.TimeSystem == "utc" {
		return "UTC"
	}
	return "GPST"
}

func (r *reporter) timeColumn(t gnsstime.Time) string {
	if r.sol.TimeSystem == "utc" {
		t = t.UTC()
	}
	if r.sol.TimeFormat == "hms" {
		return t.Format(r.sol.TimeDecimals)
	}
	week, tow := t.GPST()
	return fmt.Sprintf("%4d%s%.*f", week, r.sol.Separator, r.sol.TimeDecimals, tow)
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

// #endregion report
