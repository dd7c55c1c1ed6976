package advisor

import (
	"errors"
	"fmt"
)

// SatelliteKey identifies one satellite at one epoch.
type SatelliteKey struct {
	SatID string
	Week  int
	TOW   float64
}

// Validate requires a non-empty satellite id and a non-negative week.
func (k SatelliteKey) Validate() error {
	if k.SatID == "" {
		return errors.New("empty satellite id")
	}
	if k.Week < 0 {
		return fmt.Errorf("negative gps week %d", k.Week)
	}
	return nil
}

func (k SatelliteKey) String() string {
	return fmt.Sprintf("%s@%d:%.3f", k.SatID, k.Week, k.TOW)
}
