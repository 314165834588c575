// README: Auth middleware verifies the bearer token and exposes the caller identity.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/infra"
)

const (
	RoleDriver    = "driver"
	RolePassenger = "passenger"

	ctxUID  = "auth.uid"
	ctxRole = "auth.role"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Auth rejects requests without a valid "Bearer <token>" header. A token without
// a role claim is treated as a passenger.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing bearer token", Code: "unauthenticated"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "invalid token", Code: "unauthenticated"})
			return
		}
		role := RolePassenger
		if r, ok := token.Claims["role"].(string); ok && r != "" {
			role = r
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireRole answers 403 unless the caller has the given role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: "requires role " + role, Code: "forbidden"})
			return
		}
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
