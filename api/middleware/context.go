package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/eventstream/internal/utils"
)

// CustomContextMiddleware adds custom context to all requests. It must run
// after JWTMiddleware so the viewer identity keys are populated.
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
