package middleware

import (
	"github.com/flexprice/couponengine/internal/types"
	"github.com/gin-gonic/gin"
)

// RequestIDMiddleware attaches the X-Request-ID header, generating one when absent
func RequestIDMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	requestID := c.GetHeader(types.HeaderRequestID)
	if requestID == "" {
		requestID = types.GenerateUUIDWithPrefix("req")
	}
	ctx = types.SetRequestID(ctx, requestID)

	c.Request = c.Request.WithContext(ctx)
	c.Header(types.HeaderRequestID, requestID)

	c.Next()
}

// TenantMiddleware scopes the request to the tenant and acting user supplied by the
// upstream admin gateway. Requests without a tenant use the default tenant.
func TenantMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID := c.GetHeader(types.HeaderTenantID)
	if tenantID == "" {
		tenantID = types.DefaultTenantID
	}
	ctx = types.SetTenantID(ctx, tenantID)

	if userID := c.GetHeader(types.HeaderUserID); userID != "" {
		ctx = types.SetUserID(ctx, userID)
	}

	c.Request = c.Request.WithContext(ctx)
	c.Next()
}
