package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/eventstream/services/livestream"
	"github.com/customeros/eventstream/services/stats"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports the current state of the stream fan-out
func Status(livestreamService *livestream.LivestreamService, statsService *stats.StatsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":             "ok",
			"uptime_seconds":     int64(statsService.Uptime().Seconds()),
			"events_consumed":    statsService.TotalEvents(),
			"stream_subscribers": livestreamService.SubscriberCount(),
		})
	}
}
