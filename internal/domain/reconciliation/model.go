package reconciliation

import (
	"time"

	"github.com/flexprice/couponengine/internal/types"
)

// Run is the persisted audit record of one reconciliation pass
type Run struct {
	ID               string                        `db:"id" json:"id"`
	Status           types.ReconciliationRunStatus `db:"run_status" json:"status"`
	DryRun           bool                          `db:"dry_run" json:"dry_run"`
	CouponsScanned   int64                         `db:"coupons_scanned" json:"coupons_scanned"`
	EntriesScanned   int64                         `db:"entries_scanned" json:"entries_scanned"`
	EntriesCorrected int64                         `db:"entries_corrected" json:"entries_corrected"`
	EntriesSkipped   int64                         `db:"entries_skipped" json:"entries_skipped"`
	EngineersPosted  int64                         `db:"engineers_posted" json:"engineers_posted"`
	EngineersFailed  int64                         `db:"engineers_failed" json:"engineers_failed"`
	TotalDelta       int64                         `db:"total_delta" json:"total_delta"`
	ErrorMessage     string                        `db:"error_message" json:"error_message,omitempty"`
	StartedAt        time.Time                     `db:"started_at" json:"started_at"`
	FinishedAt       *time.Time                    `db:"finished_at" json:"finished_at,omitempty"`
}

// Adjustment records one corrected usage entry. It stays unposted until the
// engineer's aggregated delta lands in the wallet ledger.
type Adjustment struct {
	ID                  string    `db:"id" json:"id"`
	RunID               string    `db:"run_id" json:"run_id"`
	TenantID            string    `db:"tenant_id" json:"tenant_id"`
	CouponID            string    `db:"coupon_id" json:"coupon_id"`
	CouponCode          string    `db:"coupon_code" json:"coupon_code"`
	UsageID             string    `db:"usage_id" json:"usage_id"`
	OrderID             string    `db:"order_id" json:"order_id"`
	EngineerID          string    `db:"engineer_id" json:"engineer_id"`
	OldCommission       int64     `db:"old_commission" json:"old_commission"`
	NewCommission       int64     `db:"new_commission" json:"new_commission"`
	Delta               int64     `db:"delta" json:"delta"`
	PostedTransactionID *string   `db:"posted_transaction_id" json:"posted_transaction_id,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// EngineerKey identifies an engineer wallet across tenants
type EngineerKey struct {
	TenantID   string `db:"tenant_id"`
	EngineerID string `db:"engineer_id"`
}
