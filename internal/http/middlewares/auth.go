package middlewares

import (
	"net/http"
	"strings"

	"github.com/beststore/accounts/internal/actorctx"
	"github.com/beststore/accounts/internal/auth"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	tokens TokenVerifier
}

func NewAuthMiddleware(tokens TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", `Bearer realm="beststore"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":      "unauthorized",
			"message":   message,
			"requestId": c.GetString(CtxRequestID),
		},
	})
}

// RequireAuth verifies the bearer token and stashes its claims. Nothing is
// looked up here; handlers resolve the identity themselves.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, raw, found := strings.Cut(c.GetHeader("Authorization"), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			abortUnauthorized(c, "Missing or invalid Authorization header")
			return
		}

		raw = strings.TrimSpace(raw)
		if raw == "" {
			abortUnauthorized(c, "Missing or invalid access token")
			return
		}

		claims, err := m.tokens.Verify(raw)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired access token")
			return
		}

		c.Set(CtxClaims, claims)
		c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// ClaimsFromContext returns the claims stored by RequireAuth.
func ClaimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(CtxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok && claims != nil
}
