package v1

import (
	"net/http"

	"github.com/flexprice/couponengine/internal/api/dto"
	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/service"
	"github.com/gin-gonic/gin"
)

type CouponHandler struct {
	couponService service.CouponService
	logger        *logger.Logger
}

func NewCouponHandler(couponService service.CouponService, logger *logger.Logger) *CouponHandler {
	return &CouponHandler{
		couponService: couponService,
		logger:        logger,
	}
}

// @Summary Create a new coupon
// @Description Creates a new coupon
// @Tags Coupons
// @Accept json
// @Produce json
// @Param coupon body dto.CreateCouponRequest true "Coupon request"
// @Success 201 {object} dto.CouponResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /coupons [post]
func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var req dto.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	response, err := h.couponService.CreateCoupon(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// @Summary Get a coupon by ID
// @Description Retrieves a coupon by ID
// @Tags Coupons
// @Produce json
// @Param id path string true "Coupon ID"
// @Success 200 {object} dto.CouponResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /coupons/{id} [get]
func (h *CouponHandler) GetCoupon(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("coupon ID is required").
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	response, err := h.couponService.GetCoupon(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// @Summary Get a coupon by code
// @Tags Coupons
// @Produce json
// @Param code path string true "Coupon code"
// @Success 200 {object} dto.CouponResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /coupons/code/{code} [get]
func (h *CouponHandler) GetCouponByCode(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		c.Error(ierr.NewError("coupon code is required").
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	response, err := h.couponService.GetCouponByCode(c.Request.Context(), code)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// @Summary Delete a coupon
// @Description Soft deletes a coupon, its usage history is kept
// @Tags Coupons
// @Produce json
// @Param id path string true "Coupon ID"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /coupons/{id} [delete]
func (h *CouponHandler) DeleteCoupon(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("coupon ID is required").
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.couponService.DeleteCoupon(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "coupon deleted successfully"})
}

// @Summary Validate a coupon
// @Description Checks a coupon against an order without reserving a use. Ineligible
// @Description coupons are reported in the body with a reason.
// @Tags Coupons
// @Accept json
// @Produce json
// @Param request body dto.ValidateCouponRequest true "Validate request"
// @Success 200 {object} dto.ValidateCouponResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /coupons/validate [post]
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	var req dto.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	response, err := h.couponService.ValidateCoupon(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// @Summary Apply a coupon
// @Description Applies a coupon to an order. Replaying the same code and order returns
// @Description the first result.
// @Tags Coupons
// @Accept json
// @Produce json
// @Param request body dto.ApplyCouponRequest true "Apply request"
// @Success 200 {object} dto.ApplyCouponResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Failure 422 {object} ierr.ErrorResponse
// @Router /coupons/apply [post]
func (h *CouponHandler) ApplyCoupon(c *gin.Context) {
	var req dto.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	response, err := h.couponService.ApplyCoupon(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// @Summary Coupon usage history
// @Tags Coupons
// @Produce json
// @Param id path string true "Coupon ID"
// @Success 200 {object} dto.UsageHistoryResponse
// @Router /coupons/{id}/usage [get]
func (h *CouponHandler) ListUsageHistory(c *gin.Context) {
	response, err := h.couponService.ListUsageHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, response)
}
