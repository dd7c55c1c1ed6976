package positioning

import (
	"context"
	"fmt"

	"github.com/gnssanalyze/rtk-advisor/internal/advisor"
	"github.com/gnssanalyze/rtk-advisor/internal/config"
	"github.com/gnssanalyze/rtk-advisor/internal/options"
)

// #region weigher

// Weigher applies the advisory overlay to each satellite of an epoch.
type Weigher struct {
	cfg  config.AdvisoryConfig
	proc options.Processing
	adv  Advisor
}

// NewWeigher creates a weigher. proc must already be finalized.
func NewWeigher(cfg config.AdvisoryConfig, proc options.Processing, adv Advisor) *Weigher {
	return &Weigher{cfg: cfg, proc: proc, adv: adv}
}

// Weigh checks the hard vetoes first, then asks the advisor for the variance
// scale. Vetoed satellites are not consulted further.
func (w *Weigher) Weigh(ctx context.Context, key advisor.SatelliteKey, obs Observation) Decision {
	var vetoes []VetoSignal

	// 1. Navigation system not selected
	if sys := options.SystemOf(key.SatID); sys == 0 || w.proc.NavSys&sys == 0 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoSystem,
			Reason: fmt.Sprintf("system of %s not selected", key.SatID),
		})
	}

	// 2. Elevation mask
	if obs.ElevationDeg < w.proc.ElevationMaskDeg {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoElevation,
			Reason: fmt.Sprintf("elevation %.1f below mask %.1f", obs.ElevationDeg, w.proc.ElevationMaskDeg),
		})
	}

	if len(vetoes) > 0 {
		return rejected(key.SatID, false, vetoes)
	}

	// 3. Non-line-of-sight
	nlos := false
	if w.cfg.NLOSExclude.Value || w.cfg.ARMode.Value == config.ARExcludeNLOS {
		nlos = w.adv.IsNLOS(ctx, key)
	}
	if nlos && w.cfg.NLOSExclude.Value {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoNLOS,
			Reason: fmt.Sprintf("%s flagged non-line-of-sight", key.SatID),
		})
	}

	// 4. Virtual satellite
	if w.cfg.VirtualSatMode.Value && w.adv.IsVirtualSatellite(ctx, key) {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoVirtual,
			Reason: fmt.Sprintf("%s flagged virtual", key.SatID),
		})
	}

	if len(vetoes) > 0 {
		return rejected(key.SatID, nlos, vetoes)
	}

	scale := w.scale(ctx, key)
	inAR := !(nlos && w.cfg.ARMode.Value == config.ARExcludeNLOS)
	reason := fmt.Sprintf("used: scale=%.4f", scale)
	if !inAR {
		reason += ", excluded from ambiguity resolution"
	}
	return Decision{
		SatID:  key.SatID,
		Used:   true,
		InAR:   inAR,
		NLOS:   nlos,
		Scale:  scale,
		Reason: reason,
	}
}

// scale maps the variance mode onto a measurement variance multiplier.
// Mode 0 never consults the advisor.
func (w *Weigher) scale(ctx context.Context, key advisor.SatelliteKey) float64 {
	switch w.cfg.VarianceMode.Value {
	case 1:
		return w.adv.Coefficient(ctx, key)
	case 2:
		coef := w.adv.Coefficient(ctx, key)
		if coef == 1 {
			return 1
		}
		return coef * w.cfg.KCoefficient.Value
	default:
		return 1
	}
}

func rejected(satID string, nlos bool, vetoes []VetoSignal) Decision {
	return Decision{
		SatID:       satID,
		NLOS:        nlos,
		Scale:       1,
		VetoSignals: vetoes,
		Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
	}
}

// #endregion weigher
