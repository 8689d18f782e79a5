package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

//
// --- Report Handlers ---
//

// GetMissingIngredients is the handler for GET /v1/org/reports/missing-ingredients
// Sums the requirements of every planned batch, compares against on-hand
// stock, and returns the shortfall per ingredient. ?format=csv downloads a
// shopping list.
func (h *Handlers) GetMissingIngredients(c *gin.Context) {
	_, orgID := orgScope(c)
	defer h.Metrics.TimeQuery("report_missing_ingredients", time.Now())

	rows, err := h.DB.Query(`
		SELECT i.id, i.name, i.unit, i.stock_quantity,
		       SUM(ri.quantity * b.scale) AS required
		FROM batches b
		JOIN recipe_ingredients ri ON ri.recipe_id = b.recipe_id
		JOIN inventory_items i ON i.id = ri.item_id
		WHERE b.org_id = ? AND b.status = 'planned'
		GROUP BY i.id, i.name, i.unit, i.stock_quantity
		HAVING required > i.stock_quantity
		ORDER BY i.name ASC`, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute missing ingredients"})
		return
	}
	defer rows.Close()

	type missingRow struct {
		ItemID   int64   `json:"itemId"`
		ItemName string  `json:"itemName"`
		Unit     string  `json:"unit"`
		OnHand   float64 `json:"onHand"`
		Required float64 `json:"required"`
		ToBuy    float64 `json:"toBuy"`
	}
	var missing []missingRow
	for rows.Next() {
		var m missingRow
		if err := rows.Scan(&m.ItemID, &m.ItemName, &m.Unit, &m.OnHand, &m.Required); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan report row"})
			return
		}
		m.ToBuy = m.Required - m.OnHand
		missing = append(missing, m)
	}
	if err := rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error reading report rows"})
		return
	}

	if c.Query("format") == "csv" {
		filename := fmt.Sprintf("missing-ingredients-%s.csv", time.Now().Format("2006-01-02"))
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)

		w := csv.NewWriter(c.Writer)
		_ = w.Write([]string{"item", "unit", "on_hand", "required", "to_buy"})
		for _, m := range missing {
			_ = w.Write([]string{
				m.ItemName,
				m.Unit,
				fmt.Sprintf("%.4f", m.OnHand),
				fmt.Sprintf("%.4f", m.Required),
				fmt.Sprintf("%.4f", m.ToBuy),
			})
		}
		w.Flush()
		return
	}

	if missing == nil {
		missing = []missingRow{}
	}
	c.JSON(http.StatusOK, gin.H{"missingIngredients": missing})
}

// GetBatchCostReport is the handler for GET /v1/org/reports/batch-costs
// Ingredient cost per completed batch over the last 90 days, with cost per
// unit of actual yield. Makers price their products off this.
func (h *Handlers) GetBatchCostReport(c *gin.Context) {
	_, orgID := orgScope(c)

	rows, err := h.DB.Query(`
		SELECT b.id, b.label_code, r.name, b.actual_yield, b.completed_at,
		       COALESCE(SUM(bi.quantity_used * bi.unit_cost), 0) AS total_cost
		FROM batches b
		JOIN recipes r ON b.recipe_id = r.id
		LEFT JOIN batch_ingredients bi ON bi.batch_id = b.id
		WHERE b.org_id = ? AND b.status = 'completed' AND b.completed_at >= ?
		GROUP BY b.id, b.label_code, r.name, b.actual_yield, b.completed_at
		ORDER BY b.completed_at DESC`, orgID, time.Now().AddDate(0, 0, -90))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute batch costs"})
		return
	}
	defer rows.Close()

	type costRow struct {
		BatchID     int64      `json:"batchId"`
		LabelCode   string     `json:"labelCode"`
		RecipeName  string     `json:"recipeName"`
		ActualYield *float64   `json:"actualYield"`
		CompletedAt *time.Time `json:"completedAt"`
		TotalCost   float64    `json:"totalCost"`
		CostPerUnit *float64   `json:"costPerUnit"`
	}
	var report []costRow
	for rows.Next() {
		var r costRow
		if err := rows.Scan(&r.BatchID, &r.LabelCode, &r.RecipeName, &r.ActualYield, &r.CompletedAt, &r.TotalCost); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan cost row"})
			return
		}
		if r.ActualYield != nil && *r.ActualYield > 0 {
			cpu := r.TotalCost / *r.ActualYield
			r.CostPerUnit = &cpu
		}
		report = append(report, r)
	}

	if report == nil {
		report = []costRow{}
	}
	c.JSON(http.StatusOK, gin.H{"batchCosts": report})
}
