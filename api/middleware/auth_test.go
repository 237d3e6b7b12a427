package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "stream-secret"

func signToken(t *testing.T, secret string, claims StreamClaims) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWTMiddleware(JWTConfig{Secret: testSecret}))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"token":       c.GetString("TenantToken"),
			"distinct_id": c.GetString("DistinctId"),
			"admin":       c.GetBool("IsAdmin"),
		})
	})
	return router
}

func TestJWTMiddleware_MissingToken(t *testing.T) {
	router := newAuthRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Missing access token")
}

func TestJWTMiddleware_ValidBearerToken(t *testing.T) {
	router := newAuthRouter()
	token := signToken(t, testSecret, StreamClaims{Token: "tok_a", DistinctId: "user-1"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token":"tok_a"`)
	assert.Contains(t, w.Body.String(), `"distinct_id":"user-1"`)
	assert.Contains(t, w.Body.String(), `"admin":false`)
}

func TestJWTMiddleware_AccessTokenQueryParameter(t *testing.T) {
	router := newAuthRouter()
	token := signToken(t, testSecret, StreamClaims{Token: "tok_a"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected?access_token="+token, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token":"tok_a"`)
}

func TestJWTMiddleware_WrongSecret(t *testing.T) {
	router := newAuthRouter()
	token := signToken(t, "other-secret", StreamClaims{Token: "tok_a"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid access token")
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	router := newAuthRouter()
	token := signToken(t, testSecret, StreamClaims{
		Token: "tok_a",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTMiddleware_RejectsUnsignedToken(t *testing.T) {
	router := newAuthRouter()
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, StreamClaims{Token: "tok_a"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWTMiddleware(JWTConfig{Secret: testSecret}))
	router.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	t.Run("admin claim grants access", func(t *testing.T) {
		token := signToken(t, testSecret, StreamClaims{Token: "tok_a", Admin: true})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing admin claim is rejected", func(t *testing.T) {
		token := signToken(t, testSecret, StreamClaims{Token: "tok_a"})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
