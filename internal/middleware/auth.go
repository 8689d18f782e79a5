package middleware

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/batchtrack/batchtrack/internal/auth"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware creates a gin.HandlerFunc that acts as our "security guard".
// It accepts 'db' to check for Maintenance Mode on every request.
func AuthMiddleware(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. --- CHECK MAINTENANCE MODE ---
		var maintenanceMode string
		// We check the global settings row. We ignore errors (defaults to
		// empty string) if the setting hasn't been created yet.
		_ = db.QueryRow("SELECT setting_value FROM settings WHERE org_id IS NULL AND setting_key = 'maintenance_mode'").Scan(&maintenanceMode)

		// 2. --- Get Authorization Header ---
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format (must be Bearer)"})
			c.Abort()
			return
		}
		tokenString := parts[1]

		// 3. --- Validate Token ---
		claims, err := auth.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// 4. --- ENFORCE MAINTENANCE MODE ---
		// If maintenance is ON ("true"), only platform admins can pass.
		if maintenanceMode == "true" && claims.Role != "platform_admin" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "The system is currently in maintenance mode. Please try again later.",
			})
			c.Abort()
			return
		}

		// 5. --- Success ---
		c.Set("userID", claims.UserID)
		c.Set("orgID", claims.OrgID)
		c.Set("userRole", claims.Role)
		c.Next()
	}
}
