package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// AdminAuth guards admin routes with a shared token from ADMIN_API_TOKEN.
// When the env var is unset the admin surface is disabled entirely rather
// than left open.
func AdminAuth() gin.HandlerFunc {
	token := os.Getenv("ADMIN_API_TOKEN")

	return func(c *gin.Context) {
		if token == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin API disabled"})
			c.Abort()
			return
		}

		got := c.GetHeader("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			c.Abort()
			return
		}

		if caller := c.GetHeader("X-Admin-Caller"); caller != "" {
			c.Set("admin_caller", caller)
		}
		c.Next()
	}
}
