package v1

import (
	"net/http"
	"strconv"

	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/service"
	"github.com/gin-gonic/gin"
)

const defaultRunsLimit = 20

type ReconciliationHandler struct {
	reconciliationService service.ReconciliationService
	logger                *logger.Logger
}

func NewReconciliationHandler(reconciliationService service.ReconciliationService, logger *logger.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
		logger:                logger,
	}
}

// RunReconciliationRequest triggers a reconciliation pass from the admin API
type RunReconciliationRequest struct {
	DryRun bool `json:"dry_run"`
}

// @Summary Run commission reconciliation
// @Description Recomputes every historical commission. A run already holding the
// @Description maintenance lock makes this fail unless dry_run is set.
// @Tags Reconciliation
// @Accept json
// @Produce json
// @Param request body RunReconciliationRequest false "Run options"
// @Success 200 {object} service.ReconciliationReport
// @Failure 400 {object} ierr.ErrorResponse
// @Router /reconciliation/runs [post]
func (h *ReconciliationHandler) Run(c *gin.Context) {
	var req RunReconciliationRequest
	// an empty body runs for real
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Invalid request format").
				Mark(ierr.ErrValidation))
			return
		}
	}

	report, err := h.reconciliationService.Run(c.Request.Context(), service.ReconciliationOptions{DryRun: req.DryRun})
	if err != nil {
		c.Error(err)
		return
	}

	status := http.StatusOK
	if report.HasFailures() {
		status = http.StatusMultiStatus
	}
	c.JSON(status, report)
}

// @Summary List reconciliation runs
// @Tags Reconciliation
// @Produce json
// @Param limit query int false "Max runs to return"
// @Success 200 {object} dto.ListReconciliationRunsResponse
// @Router /reconciliation/runs [get]
func (h *ReconciliationHandler) ListRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	response, err := h.reconciliationService.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response)
}
