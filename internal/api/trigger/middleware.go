package trigger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// roleContextKey is where the middleware stores the caller's role.
const roleContextKey = "caller_role"

// Roles recognized by the trigger surface. The role header is set by the
// upstream gateway after authentication and is trusted here.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// RoleMiddleware extracts the caller role from X-User-Role and rejects
// requests without one.
func RoleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetHeader("X-User-Role")
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success":   false,
				"error":     "missing X-User-Role header",
				"timestamp": time.Now().UTC(),
			})
			return
		}
		c.Set(roleContextKey, role)
		c.Next()
	}
}

// RequireEditor rejects callers whose role is neither editor nor admin. Used
// for the analytics read surface, which has no per-action check of its own.
func RequireEditor() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(roleContextKey)
		if role != RoleAdmin && role != RoleEditor {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success":   false,
				"error":     "role " + role + " may not view analytics",
				"timestamp": time.Now().UTC(),
			})
			return
		}
		c.Next()
	}
}

// roleAllowed checks whether a role may invoke an action. Admin-only actions
// reject editors; every action rejects roles outside editor/admin.
func roleAllowed(action, role string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return !adminOnly[action]
	default:
		return false
	}
}
