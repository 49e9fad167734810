package middlewares

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireRole admits callers whose token carries one of roles. It must run
// after RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok || claims.Role == "" {
			abortUnauthorized(c, "Missing identity context")
			return
		}

		if !slices.Contains(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":      "forbidden",
					"message":   "Requires role " + strings.Join(roles, " or "),
					"requestId": c.GetString(CtxRequestID),
				},
			})
			return
		}
		c.Next()
	}
}
