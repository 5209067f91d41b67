package dto

import (
	"github.com/flexprice/couponengine/internal/domain/reconciliation"
)

// ListReconciliationRunsResponse lists past reconciliation runs, newest first
type ListReconciliationRunsResponse struct {
	Items []*reconciliation.Run `json:"items"`
}
