package middleware

import (
	"net/http"
	"strings"

	"github.com/flexprice/couponengine/internal/types"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware handles CORS headers for the admin dashboard
func CORSMiddleware(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*") // TODO: restrict to the dashboard origin once it is configurable
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
		"Content-Type",
		types.HeaderRequestID,
		types.HeaderTenantID,
		types.HeaderUserID,
	}, ", "))
	c.Writer.Header().Set("Access-Control-Expose-Headers", types.HeaderRequestID)
	c.Writer.Header().Set("Access-Control-Max-Age", "86400")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}
