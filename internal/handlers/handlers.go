package handlers

import (
	"database/sql"

	"github.com/batchtrack/batchtrack/internal/config"
	"github.com/batchtrack/batchtrack/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	DB      *sql.DB          // Primary Read/Write connection
	Cfg     *config.Config   // Env-driven configuration
	Log     zerolog.Logger   // Structured logger
	Metrics *metrics.Metrics // Prometheus collectors
}

// orgScope pulls the (userID, orgID) pair that AuthMiddleware stowed.
func orgScope(c *gin.Context) (userID, orgID int64) {
	userID_raw, _ := c.Get("userID")
	orgID_raw, _ := c.Get("orgID")
	userID, _ = userID_raw.(int64)
	orgID, _ = orgID_raw.(int64)
	return userID, orgID
}
