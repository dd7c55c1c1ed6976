package catalog

import "time"

// #region types

// AllEpochs marks a flag row that applies to every epoch of a satellite.
const AllEpochs = -1

// Flag is the stored classification of one satellite at one epoch. A row
// with Week == AllEpochs covers the satellite at every epoch without an
// exact row.
type Flag struct {
	SatID       string  `json:"sat"`
	Week        int     `json:"week"`
	TOW         int64   `json:"tow"`
	NLOS        bool    `json:"nlos"`
	Virtual     bool    `json:"virtual"`
	Coefficient float64 `json:"coefficient"`
}

// Run is one positioning run that used the catalog.
type Run struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     int
	Finished   bool
	ConfigJSON string
}

// InfoRecord is a key/value written back through store_info.
type InfoRecord struct {
	ID        int64
	RunID     string
	Week      int
	TOW       float64
	Key       string
	Value     string
	CreatedAt time.Time
}

// DecisionRow is a decision_log row read back for inspection.
type DecisionRow struct {
	ID        int64
	RunID     string
	Operation string
	SatID     string
	Week      int
	TOW       float64
	Outcome   string
	Value     string
	Reason    string
	CreatedAt time.Time
}

// #endregion types
