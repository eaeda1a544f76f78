package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// adminOnlyMiddleware rejects users without the admin flag. It runs after
// the user auth middleware has stored isAdmin in the context.
func adminOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if _, exists := c.Get("userID"); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !c.GetBool("isAdmin") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}
