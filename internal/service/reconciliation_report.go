package service

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/flexprice/couponengine/internal/domain/reconciliation"
	"github.com/samber/lo"
)

// ReconciliationRow is one usage entry whose commission was corrected or skipped
type ReconciliationRow struct {
	TenantID      string `json:"tenant_id"`
	EngineerID    string `json:"engineer_id"`
	CouponID      string `json:"coupon_id"`
	CouponCode    string `json:"coupon_code"`
	OrderID       string `json:"order_id"`
	OldCommission int64  `json:"old_commission"`
	NewCommission int64  `json:"new_commission"`
	Delta         int64  `json:"delta"`
	SkipReason    string `json:"skip_reason,omitempty"`
}

func (r ReconciliationRow) Skipped() bool {
	return r.SkipReason != ""
}

// EngineerSummary is the ledger outcome of a run for one engineer
type EngineerSummary struct {
	TenantID      string `json:"tenant_id"`
	EngineerID    string `json:"engineer_id"`
	Entries       int    `json:"entries"`
	Delta         int64  `json:"delta"`
	TransactionID string `json:"transaction_id,omitempty"`
	Posted        bool   `json:"posted"`
	Balance       int64  `json:"wallet_balance"`
	Err           error  `json:"-"`
}

// ReconciliationReport is the result of a reconciliation run
type ReconciliationReport struct {
	Run       *reconciliation.Run `json:"run"`
	Rows      []ReconciliationRow `json:"rows"`
	Engineers []EngineerSummary   `json:"engineers"`
}

// HasFailures reports whether any engineer ledger post failed
func (r *ReconciliationReport) HasFailures() bool {
	return lo.SomeBy(r.Engineers, func(e EngineerSummary) bool { return e.Err != nil })
}

// pendingFromRows aggregates corrected rows per engineer, used by dry runs where
// nothing is posted
func (r *ReconciliationReport) pendingFromRows() []EngineerSummary {
	type key struct{ tenantID, engineerID string }

	var order []key
	byKey := make(map[key]*EngineerSummary)
	for _, row := range r.Rows {
		if row.Skipped() {
			continue
		}
		k := key{row.TenantID, row.EngineerID}
		summary, ok := byKey[k]
		if !ok {
			summary = &EngineerSummary{TenantID: row.TenantID, EngineerID: row.EngineerID}
			byKey[k] = summary
			order = append(order, k)
		}
		summary.Entries++
		summary.Delta += row.Delta
	}

	return lo.Map(order, func(k key, _ int) EngineerSummary { return *byKey[k] })
}

// Render writes the report as aligned text tables
func (r *ReconciliationReport) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "run\t%s\tstatus\t%s\n", r.Run.ID, r.Run.Status)
	fmt.Fprintf(tw, "coupons\t%d\tentries\t%d\tcorrected\t%d\tskipped\t%d\n",
		r.Run.CouponsScanned, r.Run.EntriesScanned, r.Run.EntriesCorrected, r.Run.EntriesSkipped)
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "COUPON\tORDER\tOLD\tNEW\tDELTA\tNOTE")
	for _, row := range r.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%+d\t%s\n",
			row.CouponCode, row.OrderID, row.OldCommission, row.NewCommission, row.Delta, row.SkipReason)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "TENANT\tENGINEER\tENTRIES\tDELTA\tBALANCE\tSTATUS")
	for _, e := range r.Engineers {
		status := "pending"
		switch {
		case e.Err != nil:
			status = "failed: " + e.Err.Error()
		case e.Posted:
			status = "posted " + e.TransactionID
		case r.Run.DryRun:
			status = "dry run"
		case e.Entries > 0:
			status = "settled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%+d\t%d\t%s\n",
			e.TenantID, e.EngineerID, e.Entries, e.Delta, e.Balance, status)
	}

	return tw.Flush()
}
