// Package config reads the advisory overlay and the bridge settings from the
// process environment. Both are read once at startup and never change.
package config

import (
	"context"
	"fmt"
	"os"

	"github.com/gnssanalyze/rtk-advisor/internal/logging"
)

// #region env-names

const (
	EnvNLOS     = "NLOS_ENV"
	EnvVariance = "VARR_ENV"
	EnvVirtual  = "VS"
	EnvK        = "K_COFF"
	EnvARMode   = "AR_MODES"
)

// #endregion env-names

// #region types

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Override is one environment-sourced setting.
type Override[T any] struct {
	Raw   string
	Value T
	Set   bool
}

// ARMode selects whether NLOS-flagged satellites take part in ambiguity resolution.
type ARMode int

const (
	ARIncludeNLOS ARMode = 0
	ARExcludeNLOS ARMode = 1
)

func (m ARMode) String() string {
	if m == ARExcludeNLOS {
		return "exclude_nlos"
	}
	return "include_nlos"
}

// AdvisoryConfig is the environment overlay consumed by the positioning engine.
type AdvisoryConfig struct {
	NLOSExclude    Override[bool]
	VarianceMode   Override[int]
	VirtualSatMode Override[bool]
	KCoefficient   Override[float64]
	ARMode         Override[ARMode]

	// Warnings lists values that were present but not fully numeric.
	Warnings []string
}

// Default returns the overlay with nothing set.
func Default() AdvisoryConfig {
	return AdvisoryConfig{
		KCoefficient: Override[float64]{Value: 1.0},
		ARMode:       Override[ARMode]{Value: ARIncludeNLOS},
	}
}

// #endregion types

// #region load

// LoadFromEnvironment reads the overlay from the process environment.
func LoadFromEnvironment() AdvisoryConfig {
	return Load(os.LookupEnv)
}

// Load reads the overlay through lookup. Unset variables keep their defaults.
// Integers and floats are parsed with C atoi/atof semantics: the longest
// numeric prefix is used and text with no numeric prefix reads as zero.
func Load(lookup LookupFunc) AdvisoryConfig {
	cfg := Default()

	if raw, ok := lookup(EnvNLOS); ok {
		n := cfg.atoi(EnvNLOS, raw)
		cfg.NLOSExclude = Override[bool]{Raw: raw, Value: n == 1, Set: true}
	}
	if raw, ok := lookup(EnvVariance); ok {
		cfg.VarianceMode = Override[int]{Raw: raw, Value: cfg.atoi(EnvVariance, raw), Set: true}
	}
	if raw, ok := lookup(EnvVirtual); ok {
		n := cfg.atoi(EnvVirtual, raw)
		cfg.VirtualSatMode = Override[bool]{Raw: raw, Value: n != 0, Set: true}
	}
	if raw, ok := lookup(EnvK); ok {
		cfg.KCoefficient = Override[float64]{Raw: raw, Value: cfg.atof(EnvK, raw), Set: true}
	}
	if raw, ok := lookup(EnvARMode); ok {
		mode := ARIncludeNLOS
		switch n := cfg.atoi(EnvARMode, raw); n {
		case 0:
		case 1:
			mode = ARExcludeNLOS
		default:
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("%s=%d is not a known mode; AR includes NLOS", EnvARMode, n))
		}
		cfg.ARMode = Override[ARMode]{Raw: raw, Value: mode, Set: true}
	}
	return cfg
}

func (c *AdvisoryConfig) atoi(key, raw string) int {
	n, complete := Atoi(raw)
	if !complete {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q parsed as %d", key, raw, n))
	}
	return n
}

func (c *AdvisoryConfig) atof(key, raw string) float64 {
	f, complete := Atof(raw)
	if !complete {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q parsed as %g", key, raw, f))
	}
	return f
}

// #endregion load

// #region summary

// LogSummary describes the overlay at startup.
func (c AdvisoryConfig) LogSummary(ctx context.Context, log logging.Logger) {
	if log == nil {
		return
	}
	if c.NLOSExclude.Value {
		log.Info(ctx, "NLOS sats excluded", logging.String(EnvNLOS, c.NLOSExclude.Raw))
	} else {
		log.Info(ctx, "NLOS sats included", logging.String(EnvNLOS, c.NLOSExclude.Raw))
	}
	if c.VarianceMode.Value == 0 {
		log.Info(ctx, "traditional variance")
	} else {
		log.Info(ctx, "scaled variance", logging.Int("varr_mode", c.VarianceMode.Value))
	}
	log.Info(ctx, "k coefficient", logging.Float("k", c.KCoefficient.Value))
	log.Info(ctx, "virtual satellite handling", logging.Bool("enabled", c.VirtualSatMode.Value))
	if c.ARMode.Value == ARExcludeNLOS {
		log.Info(ctx, "AR excluding NLOS")
	} else {
		log.Info(ctx, "AR including NLOS")
	}
	for _, w := range c.Warnings {
		log.Warn(ctx, "advisory overlay", logging.String("warning", w))
	}
}

// #endregion summary
