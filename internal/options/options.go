// Package options holds the processing, solution and file options handed to
// the positioning engine, loaded from a YAML options file.
package options

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// #region navsys

// NavSys is a bitmask of navigation systems.
type NavSys int

const (
	SysGPS NavSys = 0x01
	SysSBS NavSys = 0x02
	SysGLO NavSys = 0x04
	SysGAL NavSys = 0x08
	SysQZS NavSys = 0x10
	SysBDS NavSys = 0x20
	SysIRN NavSys = 0x40
)

var systemLetters = map[byte]NavSys{
	'G': SysGPS,
	'R': SysGLO,
	'E': SysGAL,
	'J': SysQZS,
	'C': SysBDS,
	'I': SysIRN,
	'S': SysSBS,
}

// SystemOf returns the navigation system of a satellite id such as "G05",
// or 0 when the prefix is unknown.
func SystemOf(satID string) NavSys {
	if satID == "" {
		return 0
	}
	return systemLetters[satID[0]]
}

// ParseSystems parses a comma separated list of system letters, e.g. "G,R,E".
func ParseSystems(s string) (NavSys, error) {
	var mask NavSys
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		for i := 0; i < len(part); i++ {
			sys, ok := systemLetters[part[i]]
			if !ok {
				return 0, fmt.Errorf("unknown navigation system %q", part[i:i+1])
			}
			mask |= sys
		}
	}
	return mask, nil
}

// #endregion navsys

// #region types

// Positioning modes.
const (
	ModeSingle = iota
	ModeDGPS
	ModeKinematic
	ModeStatic
	ModeMovingBase
	ModeFixed
	ModePPPKinematic
	ModePPPStatic
)

// Processing options.
type Processing struct {
	Mode             int     `yaml:"mode"`
	Systems          string  `yaml:"systems"`
	ElevationMaskDeg float64 `yaml:"elevation_mask_deg"`
	Frequencies      int     `yaml:"frequencies"`
	ARThreshold      float64 `yaml:"ar_threshold"`
	SolutionType     int     `yaml:"solution_type"` // 0 forward, 1 backward, 2 combined
	ARMode           int     `yaml:"ar_mode"`       // 0 off, 1 continuous, 2 instantaneous, 3 fix and hold
	GlonassAR        int     `yaml:"glonass_ar"`
	RefPos           RefPos  `yaml:"ref_pos"`

	NavSys NavSys `yaml:"-"`
}

// RefPos is the base (or rover, in fixed modes) position.
type RefPos struct {
	Kind     string     `yaml:"kind"` // single (average of single positions), ecef, llh
	Position [3]float64 `yaml:"position"`
}

// Solution output options.
type Solution struct {
	TimeFormat   string `yaml:"time_format"`   // tow | hms
	TimeSystem   string `yaml:"time_system"`   // gpst | utc
	PosFormat    string `yaml:"pos_format"`    // llh | xyz | enu | nmea
	DegreeFormat string `yaml:"degree_format"` // deg | dms
	Separator    string `yaml:"separator"`
	TimeDecimals int    `yaml:"time_decimals"`
	StatusLevel  int    `yaml:"status_level"`
	TraceLevel   int    `yaml:"trace_level"`
	Program      string `yaml:"-"`
}

// File options.
type File struct {
	Trace string `yaml:"trace"`
}

// Options bundles everything passed to the positioning engine.
type Options struct {
	Processing Processing `yaml:"processing"`
	Solution   Solution   `yaml:"solution"`
	File       File       `yaml:"file"`
}

// #endregion types

// #region defaults

// Default returns the front-end defaults: kinematic mode, GPS+GLONASS,
// 15 degree mask, L1+L2, ratio threshold 3.0.
func Default() Options {
	return Options{
		Processing: Processing{
			Mode:             ModeKinematic,
			ElevationMaskDeg: 15,
			Frequencies:      2,
			ARThreshold:      3.0,
			ARMode:           1,
			GlonassAR:        1,
			RefPos:           RefPos{Kind: "single"},
		},
		Solution: Solution{
			TimeFormat:   "tow",
			TimeSystem:   "gpst",
			PosFormat:    "llh",
			DegreeFormat: "deg",
			Separator:    " ",
			TimeDecimals: 3,
		},
	}
}

// #endregion defaults

// #region load

// Load reads a YAML options file over the defaults and validates the result.
func Load(path string) (Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}

	opts := Default()
	if err := yaml.Unmarshal(b, &opts); err != nil {
		return Options{}, fmt.Errorf("parse options file %q: %w", path, err)
	}
	if err := opts.Finalize(); err != nil {
		return Options{}, fmt.Errorf("options file %q: %w", path, err)
	}
	return opts, nil
}

// Finalize resolves derived fields and validates. It must run after every
// override has been applied.
func (o *Options) Finalize() error {
	p := &o.Processing
	if p.Mode < ModeSingle || p.Mode > ModePPPStatic {
		return fmt.Errorf("processing.mode must be 0..7, got %d", p.Mode)
	}
	if p.Frequencies < 1 || p.Frequencies > 3 {
		return fmt.Errorf("processing.frequencies must be 1..3, got %d", p.Frequencies)
	}
	if p.ElevationMaskDeg < 0 || p.ElevationMaskDeg >= 90 {
		return fmt.Errorf("processing.elevation_mask_deg must be in [0, 90)")
	}
	if p.ARThreshold < 0 {
		return fmt.Errorf("processing.ar_threshold must be >= 0")
	}
	if p.SolutionType < 0 || p.SolutionType > 2 {
		return fmt.Errorf("processing.solution_type must be 0..2, got %d", p.SolutionType)
	}
	switch p.RefPos.Kind {
	case "", "single":
		p.RefPos.Kind = "single"
	case "ecef", "llh":
	default:
		return fmt.Errorf("processing.ref_pos.kind %q: want single, ecef or llh", p.RefPos.Kind)
	}

	if p.Systems != "" {
		mask, err := ParseSystems(p.Systems)
		if err != nil {
			return fmt.Errorf("processing.systems: %w", err)
		}
		p.NavSys = mask
	}
	if p.NavSys == 0 {
		p.NavSys = SysGPS | SysGLO
	}

	s := &o.Solution
	switch s.PosFormat {
	case "llh", "xyz", "enu", "nmea":
	default:
		return fmt.Errorf("solution.pos_format %q: want llh, xyz, enu or nmea", s.PosFormat)
	}
	switch s.TimeSystem {
	case "gpst", "utc":
	default:
		return fmt.Errorf("solution.time_system %q: want gpst or utc", s.TimeSystem)
	}
	if s.TimeDecimals < 0 || s.TimeDecimals > 9 {
		return fmt.Errorf("solution.time_decimals must be 0..9")
	}
	if s.Separator == "" {
		s.Separator = " "
	}
	return nil
}

// #endregion load
