package v1

import (
	"net/http"

	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/service"
	"github.com/gin-gonic/gin"
)

type EngineerHandler struct {
	engineerService service.EngineerService
	logger          *logger.Logger
}

func NewEngineerHandler(engineerService service.EngineerService, logger *logger.Logger) *EngineerHandler {
	return &EngineerHandler{
		engineerService: engineerService,
		logger:          logger,
	}
}

// @Summary Get engineer wallet
// @Description Returns the wallet balance and the full commission ledger of an engineer
// @Tags Engineers
// @Produce json
// @Param id path string true "Engineer user ID"
// @Success 200 {object} dto.EngineerWalletResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /engineers/{id}/wallet [get]
func (h *EngineerHandler) GetWallet(c *gin.Context) {
	response, err := h.engineerService.GetEngineerWallet(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// @Summary Rebuild engineer wallet balance
// @Description Recomputes the wallet balance by replaying the ledger
// @Tags Engineers
// @Produce json
// @Param id path string true "Engineer user ID"
// @Success 200 {object} dto.RebuildBalanceResponse
// @Router /engineers/{id}/wallet/rebuild [post]
func (h *EngineerHandler) RebuildBalance(c *gin.Context) {
	response, err := h.engineerService.RebuildBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	h.logger.Infow("rebuilt engineer wallet balance",
		"engineer_id", c.Param("id"),
		"previous_balance", response.PreviousBalance,
		"balance", response.WalletBalance,
	)
	c.JSON(http.StatusOK, response)
}
