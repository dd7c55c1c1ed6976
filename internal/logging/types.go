package logging

import "time"

// #region decision-entry

// DecisionEntry is a single row in the decision_log table: one advisory
// answer handed to the positioning engine.
type DecisionEntry struct {
	RunID     string
	Operation string // "get_coefficient" | "is_nlos" | "is_virtual_satellite" | "store_info"
	SatID     string
	Week      int
	TOW       float64
	Outcome   string // "engine" | "fallback"
	Value     string
	Reason    string
	CreatedAt time.Time
}

// #endregion decision-entry
