package types

// ReconciliationRunStatus represents the state of a reconciliation run
type ReconciliationRunStatus string

const (
	ReconciliationRunStatusRunning   ReconciliationRunStatus = "running"
	ReconciliationRunStatusCompleted ReconciliationRunStatus = "completed"
	// ReconciliationRunStatusPartial means usage entries were corrected but at least
	// one engineer ledger post failed; the unposted adjustments are picked up by the next run
	ReconciliationRunStatusPartial ReconciliationRunStatus = "partial"
	ReconciliationRunStatusFailed  ReconciliationRunStatus = "failed"
	ReconciliationRunStatusDryRun  ReconciliationRunStatus = "dry_run"
)

// ReconciliationLockName is the maintenance lock held by a reconciliation run
const ReconciliationLockName = "commission_reconciliation"
