// Package webhookauth is the shared-secret Bearer middleware guarding the
// archival worker's webhook-trigger endpoint.
// Grounded on the teacher's internal/auth middleware shape (Authorization
// header parsing, gin.AbortWithStatusJSON on failure), generalised from a
// JWT bearer check to a constant shared-secret comparison since the
// worker and the API share one salt rather than issuing tokens.
package webhookauth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Middleware rejects any request whose Authorization header isn't
// "Bearer <salt>", using a constant-time comparison since the salt also
// protects file_key derivation.
func Middleware(salt string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(salt)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
