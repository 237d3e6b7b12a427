package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/eventstream/internal/utils"
	"github.com/customeros/eventstream/services/stats"
)

// Stats reports rolling stream counters. Admins see every token, other
// viewers only their own activity.
func Stats(statsService *stats.StatsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if utils.IsAdminFromContext(ctx) {
			c.JSON(http.StatusOK, statsService.Snapshot())
			return
		}

		token := utils.GetTenantTokenFromContext(ctx)
		c.JSON(http.StatusOK, stats.TokenActivity{
			Token:       token,
			ActiveUsers: statsService.ActiveUserCount(token),
		})
	}
}
