package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mentorsync/internal/api/http/handler"
)

// SharedSecret guards operator and trigger endpoints with
// "Authorization: Bearer <secret>". A configured secret is always enforced.
// Without one, production rejects every request and other environments let
// requests through with a warning.
func SharedSecret(log *zap.Logger, secret string, production bool) gin.HandlerFunc {
	if secret == "" {
		if production {
			log.Error("shared secret is not configured, protected endpoints will reject all requests")

			return func(c *gin.Context) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, handler.ResponseWithMessage{
					Status:  handler.StatusNotPermitted,
					Message: "endpoint is not configured",
				})
			}
		}

		log.Warn("shared secret is not configured, protected endpoints are open outside production")

		return func(c *gin.Context) {
			c.Next()
		}
	}

	want := []byte(secret)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		token, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.ResponseWithMessage{
				Status:  handler.StatusNotPermitted,
				Message: "invalid or missing bearer token",
			})

			return
		}

		c.Next()
	}
}
