package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore disables HTTP caching for session reads. Snapshots change on
// every clock tick, so intermediaries must never serve a stale one.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
