package v1

import (
	"net/http"

	"github.com/flexprice/couponengine/internal/api/dto"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewHealthHandler(
	db *postgres.DB,
	logger *logger.Logger,
) *HealthHandler {
	return &HealthHandler{
		db:     db,
		logger: logger,
	}
}

// @Summary Health check
// @Description Health check
// @Tags Health
// @Produce json
// @Success 200 {object} dto.HealthResponse
// @Failure 503 {object} dto.HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Database: "unknown"})
		return
	}

	if err := h.db.PingContext(c.Request.Context()); err != nil {
		h.logger.Errorw("database ping failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "degraded", Database: "unreachable"})
		return
	}

	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Database: "ok"})
}
