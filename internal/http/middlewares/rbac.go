package middlewares

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RequireRole must run after RequireToken.
func (m *AuthMiddleware) RequireRole(allowed ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)
		if !ok || role == "" {
			abort(c, http.StatusUnauthorized, "unauthenticated", "Missing identity context", nil)
			return
		}
		if _, ok := set[role]; !ok {
			abort(c, http.StatusForbidden, "forbidden", "Insufficient role", nil)
			return
		}
		c.Next()
	}
}

// RequireSelfOrElevated lets the request through when the path parameter
// param names the caller, or the caller holds the elevated role. It must run
// after RequireToken.
func (m *AuthMiddleware) RequireSelfOrElevated(param, elevated string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserIDFromContext(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthenticated", "Missing identity context", nil)
			return
		}

		if role, _ := RoleFromContext(c); role == elevated {
			c.Next()
			return
		}

		target, err := strconv.ParseInt(c.Param(param), 10, 64)
		if err != nil || target != userID {
			abort(c, http.StatusForbidden, "forbidden", "You can only access your own resource", nil)
			return
		}
		c.Next()
	}
}
