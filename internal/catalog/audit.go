package catalog

import (
	"context"

	"github.com/gnssanalyze/rtk-advisor/internal/logging"
)

// AuditLog writes advisory decisions for one run into decision_log.
type AuditLog struct {
	store *Store
	runID string
}

// NewAuditLog binds the audit log to a run.
func NewAuditLog(store *Store, runID string) *AuditLog {
	return &AuditLog{store: store, runID: runID}
}

// RecordDecision stamps entry with the run id and persists it.
func (a *AuditLog) RecordDecision(_ context.Context, entry logging.DecisionEntry) error {
	entry.RunID = a.runID
	return logging.LogDecision(a.store.DB(), entry)
}
