package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

//
// --- Role-Based Middleware ---
//
// These middleware functions are designed to be used AFTER the main
// AuthMiddleware(). They read the role claim from the context and
// enforce role permissions. The role comes from the JWT, so no extra
// DB round-trip is needed here.
//

// roleFromContext pulls the role set by AuthMiddleware.
func roleFromContext(c *gin.Context) (string, bool) {
	role_raw, exists := c.Get("userRole")
	if !exists {
		return "", false
	}
	role, ok := role_raw.(string)
	return role, ok
}

// RequireOrgAdmin allows 'owner' and 'admin' (and platform admins) through.
func RequireOrgAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Get role from AuthMiddleware
		role, ok := roleFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Role not found in context (AuthMiddleware must run first)"})
			c.Abort()
			return
		}

		// 2. Check permission
		if role != "owner" && role != "admin" && role != "platform_admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied: Owner or Admin role required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireOwner allows only the org owner (and platform admins) through.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := roleFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Role not found in context (AuthMiddleware must run first)"})
			c.Abort()
			return
		}

		if role != "owner" && role != "platform_admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied: Owner role required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequirePlatformAdmin gates the cross-org admin surface.
func RequirePlatformAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := roleFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Role not found in context (AuthMiddleware must run first)"})
			c.Abort()
			return
		}

		if role != "platform_admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied: Platform Admin role required"})
			c.Abort()
			return
		}

		c.Next()
	}
}
