package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gnssanalyze/rtk-advisor/internal/gnsstime"
	"github.com/gnssanalyze/rtk-advisor/internal/options"
)

// #region cli

// cli holds the parsed command line.
type cli struct {
	fs *flag.FlagSet

	optionsFile string
	output      string
	start       string
	end         string
	interval    float64
	mode        int
	freqs       int
	systems     string
	mask        float64
	arThreshold float64
	separator   string
	decimals    int
	backward    bool
	combined    bool
	instantAR   bool
	fixHold     bool
	hmsTime     bool
	utc         bool
	ecef        bool
	enu         bool
	nmea        bool
	dms         bool
	basePosXYZ  string
	basePosLLH  string
	statusLevel int
	traceLevel  int
	audit       bool
	metricsAddr string

	inputs []string
}

func parseArgs(args []string, stderr io.Writer) (*cli, error) {
	c := &cli{fs: flag.NewFlagSet("rnx2rtkp", flag.ContinueOnError)}
	fs := c.fs
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	fs.StringVar(&c.optionsFile, "k", "", "options file")
	fs.StringVar(&c.output, "o", "", "output file")
	fs.StringVar(&c.start, "ts", "", "start time \"y/m/d h:m:s\"")
	fs.StringVar(&c.end, "te", "", "end time \"y/m/d h:m:s\"")
	fs.Float64Var(&c.interval, "ti", 0, "time interval (sec)")
	fs.IntVar(&c.mode, "p", options.ModeKinematic, "positioning mode")
	fs.IntVar(&c.freqs, "f", 2, "number of frequencies")
	fs.StringVar(&c.systems, "sys", "", "navigation systems")
	fs.Float64Var(&c.mask, "m", 15, "elevation mask (deg)")
	fs.Float64Var(&c.arThreshold, "v", 3.0, "AR validation threshold")
	fs.StringVar(&c.separator, "s", " ", "field separator")
	fs.IntVar(&c.decimals, "d", 3, "time decimals")
	fs.BoolVar(&c.backward, "b", false, "backward solutions")
	fs.BoolVar(&c.combined, "c", false, "combined solutions")
	fs.BoolVar(&c.instantAR, "i", false, "instantaneous AR")
	fs.BoolVar(&c.fixHold, "h", false, "fix and hold AR")
	fs.BoolVar(&c.hmsTime, "t", false, "yyyy/mm/dd hh:mm:ss time")
	fs.BoolVar(&c.utc, "u", false, "utc time")
	fs.BoolVar(&c.ecef, "e", false, "ecef output")
	fs.BoolVar(&c.enu, "a", false, "enu output")
	fs.BoolVar(&c.nmea, "n", false, "nmea output")
	fs.BoolVar(&c.dms, "g", false, "dms output")
	fs.StringVar(&c.basePosXYZ, "r", "", "base ecef position \"x y z\"")
	fs.StringVar(&c.basePosLLH, "l", "", "base position \"lat lon hgt\"")
	fs.IntVar(&c.statusLevel, "y", 0, "solution status level")
	fs.IntVar(&c.traceLevel, "x", 0, "trace level")
	fs.BoolVar(&c.audit, "audit", false, "record advisory decisions")
	fs.StringVar(&c.metricsAddr, "metrics-addr", "", "metrics listen address")

	// options may follow input files; parsing resumes after each positional
	// argument until "--" or the end of the line
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		left := fs.Args()
		if len(left) == 0 {
			break
		}
		if consumed := len(rest) - len(left); consumed > 0 && rest[consumed-1] == "--" {
			c.inputs = append(c.inputs, left...)
			break
		}
		c.inputs = append(c.inputs, left[0])
		rest = left[1:]
	}
	return c, nil
}

// #endregion cli

// #region options

// buildOptions loads the options file, if any, and applies every flag that
// was given explicitly on top of it.
func (c *cli) buildOptions() (options.Options, error) {
	opts := options.Default()
	if c.optionsFile != "" {
		loaded, err := options.Load(c.optionsFile)
		if err != nil {
			return options.Options{}, err
		}
		opts = loaded
	}

	p, s := &opts.Processing, &opts.Solution
	var err error
	c.fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "p":
			p.Mode = c.mode
		case "f":
			p.Frequencies = c.freqs
		case "sys":
			// flags replace the file's selection rather than adding to it
			p.Systems, p.NavSys = c.systems, 0
		case "m":
			p.ElevationMaskDeg = c.mask
		case "v":
			p.ARThreshold = c.arThreshold
		case "b":
			p.SolutionType = 1
		case "c":
			p.SolutionType = 2
		case "i":
			p.ARMode = 2
		case "h":
			p.ARMode = 3
		case "r":
			p.RefPos.Kind = "ecef"
			p.RefPos.Position, err = parseTriple(c.basePosXYZ)
		case "l":
			p.RefPos.Kind = "llh"
			p.RefPos.Position, err = parseTriple(c.basePosLLH)
		case "s":
			s.Separator = c.separator
		case "d":
			s.TimeDecimals = c.decimals
		case "t":
			s.TimeFormat = "hms"
		case "u":
			s.TimeSystem = "utc"
		case "e":
			s.PosFormat = "xyz"
		case "a":
			s.PosFormat = "enu"
		case "n":
			s.PosFormat = "nmea"
		case "g":
			s.DegreeFormat = "dms"
		case "y":
			s.StatusLevel = c.statusLevel
		case "x":
			s.TraceLevel = c.traceLevel
		}
		if err != nil {
			err = fmt.Errorf("-%s: %w", f.Name, err)
		}
	})
	if err != nil {
		return options.Options{}, err
	}
	s.Program = "rnx2rtkp"

	if err := opts.Finalize(); err != nil {
		return options.Options{}, err
	}
	return opts, nil
}

// window parses -ts and -te. Unset bounds stay zero.
func (c *cli) window() (start, end gnsstime.Time, err error) {
	if c.start != "" {
		if start, err = parseEpochFlag(c.start); err != nil {
			return start, end, fmt.Errorf("-ts: %w", err)
		}
	}
	if c.end != "" {
		if end, err = parseEpochFlag(c.end); err != nil {
			return start, end, fmt.Errorf("-te: %w", err)
		}
	}
	return start, end, nil
}

func parseEpochFlag(v string) (gnsstime.Time, error) {
	parts := strings.Fields(v)
	if len(parts) != 2 {
		return gnsstime.Time{}, fmt.Errorf("want \"y/m/d h:m:s\", got %q", v)
	}
	return gnsstime.ParseEpoch(parts[0], parts[1])
}

func parseTriple(v string) ([3]float64, error) {
	var out [3]float64
	parts := strings.FieldsFunc(v, func(r rune) bool { return r == ' ' || r == ',' })
	if len(parts) != 3 {
		return out, fmt.Errorf("want 3 values, got %q", v)
	}
	for i, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return out, err
		}
		out[i] = f
	}
	return out, nil
}

// #endregion options
