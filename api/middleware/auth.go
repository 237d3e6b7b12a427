package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// StreamClaims carries the viewer identity embedded in stream access tokens.
type StreamClaims struct {
	Token      string `json:"token"`
	DistinctId string `json:"distinct_id"`
	Admin      bool   `json:"admin"`
	jwt.RegisteredClaims
}

// JWTConfig holds the configuration for access token validation
type JWTConfig struct {
	Secret string
}

// JWTMiddleware validates bearer tokens and exposes the viewer identity to
// downstream handlers. EventSource cannot set request headers, so the token
// is also accepted as an access_token query parameter.
func JWTMiddleware(config JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := accessToken(c)
		if raw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing access token",
			})
			c.Abort()
			return
		}

		claims := &StreamClaims{}
		parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(config.Secret), nil
		})
		if err != nil || !parsed.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid access token",
			})
			c.Abort()
			return
		}

		c.Set("TenantToken", claims.Token)
		c.Set("DistinctId", claims.DistinctId)
		c.Set("IsAdmin", claims.Admin)
		c.Next()
	}
}

// RequireAdmin rejects viewers whose access token does not carry the admin
// claim. It must run after JWTMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("IsAdmin") {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func accessToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("access_token"))
}
