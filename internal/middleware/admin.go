package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminMiddleware guards snapshot ingestion with a shared API key.
type AdminMiddleware struct {
	apiKey string
}

// NewAdminMiddleware creates admin middleware. An empty key disables admin
// access entirely.
func NewAdminMiddleware(apiKey string) *AdminMiddleware {
	return &AdminMiddleware{apiKey: apiKey}
}

// RequireAdminAuth accepts the key as a Bearer token or in X-API-Key.
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.apiKey == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access disabled"})
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			if parts := strings.Split(c.GetHeader("Authorization"), " "); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				key = parts[1]
			}
		}

		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(am.apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Admin authentication required"})
			return
		}
		c.Next()
	}
}
