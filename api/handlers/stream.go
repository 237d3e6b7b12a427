package handlers

import (
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customeros/eventstream/internal/utils"
	"github.com/customeros/eventstream/services/livestream"
)

const streamHeartbeatInterval = 30 * time.Second

// Stream attaches the caller to the live event feed over server-sent events.
// Viewers are always scoped to the token in their access token; admins may
// widen the scope with a token query parameter or drop it entirely.
func Stream(livestreamService *livestream.LivestreamService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		filter := livestream.Filter{
			Token:      utils.GetTenantTokenFromContext(ctx),
			DistinctId: c.Query("distinct_id"),
		}
		if names := c.Query("events"); names != "" {
			filter.EventNames = strings.Split(names, ",")
		}
		if utils.IsAdminFromContext(ctx) {
			filter.Token = c.Query("token")
		}

		sub := livestreamService.Subscribe(filter)
		defer livestreamService.Unsubscribe(sub.ID)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		c.SSEvent("connected", gin.H{"subscription_id": sub.ID})
		c.Writer.Flush()

		heartbeat := time.NewTicker(streamHeartbeatInterval)
		defer heartbeat.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case event, ok := <-sub.Events:
				if !ok {
					return false
				}
				c.SSEvent("message", event)
				return true
			case <-heartbeat.C:
				// Keeps proxies from timing out idle streams.
				c.SSEvent("heartbeat", time.Now().UTC().Format(time.RFC3339))
				return true
			case <-ctx.Done():
				return false
			}
		})
	}
}
