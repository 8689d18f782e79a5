package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

//
// --- Dashboard Handlers ---
//

// GetOrgStats is the handler for GET /v1/org/dashboard
// One round trip per number; the dashboard polls this every minute and the
// queries are all indexed counts.
func (h *Handlers) GetOrgStats(c *gin.Context) {
	_, orgID := orgScope(c)
	defer h.Metrics.TimeQuery("dashboard_org_stats", time.Now())

	var stats struct {
		InventoryValue  float64 `json:"inventoryValue"`
		LowStockItems   int64   `json:"lowStockItems"`
		ActiveRecipes   int64   `json:"activeRecipes"`
		PlannedBatches  int64   `json:"plannedBatches"`
		BatchesInFlight int64   `json:"batchesInFlight"`
		CompletedMonth  int64   `json:"completedThisMonth"`
	}

	// Valuation comes from the lots, not the cached item totals, because
	// unit cost varies lot to lot.
	err := h.DB.QueryRow(`
		SELECT COALESCE(SUM(l.remaining_quantity * l.unit_cost), 0)
		FROM inventory_lots l
		JOIN inventory_items i ON l.item_id = i.id
		WHERE l.org_id = ? AND i.is_archived = FALSE`, orgID).Scan(&stats.InventoryValue)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute inventory value"})
		return
	}

	err = h.DB.QueryRow(`
		SELECT COUNT(*) FROM inventory_items
		WHERE org_id = ? AND is_archived = FALSE AND stock_quantity <= low_stock_threshold`, orgID).Scan(&stats.LowStockItems)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count low-stock items"})
		return
	}

	err = h.DB.QueryRow(`
		SELECT COUNT(*) FROM recipes
		WHERE org_id = ? AND status = 'active'`, orgID).Scan(&stats.ActiveRecipes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count recipes"})
		return
	}

	batchCounts, err := h.DB.Query(`
		SELECT status, COUNT(*) FROM batches
		WHERE org_id = ? AND status IN ('planned', 'in_progress')
		GROUP BY status`, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count batches"})
		return
	}
	for batchCounts.Next() {
		var status string
		var n int64
		if err := batchCounts.Scan(&status, &n); err != nil {
			batchCounts.Close()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan batch counts"})
			return
		}
		switch status {
		case "planned":
			stats.PlannedBatches = n
		case "in_progress":
			stats.BatchesInFlight = n
		}
	}
	batchCounts.Close()

	err = h.DB.QueryRow(`
		SELECT COUNT(*) FROM batches
		WHERE org_id = ? AND status = 'completed' AND completed_at >= ?`,
		orgID, startOfMonth(time.Now())).Scan(&stats.CompletedMonth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count completed batches"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}
