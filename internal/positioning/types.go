package positioning

import (
	"context"

	"github.com/gnssanalyze/rtk-advisor/internal/advisor"
	"github.com/gnssanalyze/rtk-advisor/internal/gnsstime"
	"github.com/gnssanalyze/rtk-advisor/internal/options"
)

// #region runner

// Request is one positioning run.
type Request struct {
	Start    gnsstime.Time // zero: from the first epoch
	End      gnsstime.Time // zero: to the last epoch
	Interval float64       // seconds, 0 processes every epoch
	Options  options.Options
	Inputs   []string
	Output   string // empty writes to the runner's default writer
}

// Runner runs the positioning engine and returns its status, 0 on success.
type Runner interface {
	Run(ctx context.Context, req Request) (int, error)
}

// Advisor is the decision facade consulted per satellite and epoch.
type Advisor interface {
	Coefficient(ctx context.Context, key advisor.SatelliteKey) float64
	IsNLOS(ctx context.Context, key advisor.SatelliteKey) bool
	IsVirtualSatellite(ctx context.Context, key advisor.SatelliteKey) bool
	StoreInfo(ctx context.Context, epoch gnsstime.Time, key, value string) bool
}

// #endregion runner

// #region veto-type

// VetoType enumerates reasons a satellite is dropped from an epoch.
type VetoType string

const (
	VetoSystem    VetoType = "system_not_selected"
	VetoElevation VetoType = "below_elevation_mask"
	VetoNLOS      VetoType = "nlos_excluded"
	VetoVirtual   VetoType = "virtual_satellite"
)

// VetoSignal is one detected exclusion condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-type

// #region observation

// Observation is one satellite tracked at one epoch.
type Observation struct {
	SatID        string  `json:"sat"`
	ElevationDeg float64 `json:"elevation_deg"`
	SNR          float64 `json:"snr,omitempty"`
}

// Epoch groups the observations taken at one receiver time.
type Epoch struct {
	Week       int           `json:"week"`
	TOW        float64       `json:"tow"`
	Satellites []Observation `json:"satellites"`
}

// Time returns the epoch time.
func (e Epoch) Time() gnsstime.Time { return gnsstime.FromGPST(e.Week, e.TOW) }

// #endregion observation

// #region decision

// Decision is the weighting outcome for one satellite at one epoch.
type Decision struct {
	SatID string
	// Used is false when any veto fired.
	Used bool
	// InAR reports whether the satellite takes part in ambiguity resolution.
	InAR        bool
	NLOS        bool
	Scale       float64
	VetoSignals []VetoSignal
	Reason      string
}

// EpochResult is the outcome of one processed epoch.
type EpochResult struct {
	Time      gnsstime.Time
	Decisions []Decision
	Excluded  []string
	NonAR     []string
}

// #endregion decision
