package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/tracing"
	"github.com/customeros/eventstream/services/tokens"
)

const defaultTokenListLimit = 100

// ListTokens reports the tracked token inventory. With persistence configured
// the list comes from the store, otherwise from the in-memory registry of the
// current process.
func ListTokens(tokensService *tokens.TokensService, tokenRepository interfaces.TokenRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ListTokens", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		if tokenRepository == nil {
			c.JSON(http.StatusOK, gin.H{
				"persisted": false,
				"tokens":    tokensService.List(),
			})
			return
		}

		limit := defaultTokenListLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}

		records, err := tokenRepository.GetList(ctx, limit)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"persisted": true,
			"tokens":    records,
		})
	}
}
