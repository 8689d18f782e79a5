package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/batchtrack/batchtrack/internal/format"
	"github.com/batchtrack/batchtrack/internal/inventory"
	"github.com/batchtrack/batchtrack/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

//
// --- Batch Handlers ---
//

type PlanBatchInput struct {
	RecipeID int64   `json:"recipeId" binding:"required"`
	Scale    float64 `json:"scale" binding:"required,gt=0"`
	Notes    string  `json:"notes"`
}

// PlanBatch is the handler for POST /v1/org/batches
// A planned batch reserves nothing: no label, no stock. The monthly batch
// limit is checked here so makers find out before they melt the oils.
func (h *Handlers) PlanBatch(c *gin.Context) {
	userID, orgID := orgScope(c)

	var input PlanBatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	// 1. --- Entitlement Check: batches this month ---
	allowed, limit, err := h.checkBatchLimit(tx, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check batch limit"})
		return
	}
	if !allowed {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": "Your subscription tier allows at most " + strconv.Itoa(limit) + " batches per month. Upgrade to make more.",
		})
		return
	}

	// 2. --- Fetch the recipe (must be active, must be ours) ---
	var yieldQty float64
	err = tx.QueryRow(`
		SELECT yield_quantity FROM recipes
		WHERE id = ? AND org_id = ? AND status = 'active'`,
		input.RecipeID, orgID).Scan(&yieldQty)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Recipe not found or not active"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipe"})
		return
	}

	// 3. --- Insert the planned batch ---
	now := time.Now()
	var notes *string
	if input.Notes != "" {
		notes = &input.Notes
	}
	result, err := tx.Exec(`
		INSERT INTO batches
		(org_id, recipe_id, scale, status, projected_yield, notes, created_by, created_at, updated_at)
		VALUES (?, ?, ?, 'planned', ?, ?, ?, ?, ?)`,
		orgID, input.RecipeID, input.Scale, yieldQty*input.Scale, notes, userID, now, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create batch"})
		return
	}
	batchID, _ := result.LastInsertId()

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit batch plan"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Batch planned", "batchId": batchID})
}

// StartBatch is the handler for POST /v1/org/batches/:id/start
// This is the big one. In a single serializable transaction we:
//  1. lock the batch row
//  2. reserve the next label from the org's monthly counter
//  3. FIFO-consume every recipe ingredient x scale through the engine
//  4. record which lot each ingredient came from (lineage)
//  5. flip the batch to in_progress
// A shortage on ANY ingredient aborts the whole thing with a 409.
func (h *Handlers) StartBatch(c *gin.Context) {
	userID, orgID := orgScope(c)
	batchID, ok := paramID(c, "id")
	if !ok {
		return
	}

	// 1. --- Begin Transaction ---
	tx, err := h.DB.BeginTx(c, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback() // Safety net

	// 2. --- Lock the batch & check its state ---
	var recipeID int64
	var scale float64
	var status string
	err = tx.QueryRow(`
		SELECT recipe_id, scale, status FROM batches
		WHERE id = ? AND org_id = ?
		FOR UPDATE`, batchID, orgID).Scan(&recipeID, &scale, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch batch"})
		return
	}
	if status != "planned" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Batch is not in 'planned' status"})
		return
	}

	// 3. --- Reserve the next label ---
	labelCode, err := h.nextBatchLabel(tx, orgID, recipeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reserve batch label"})
		return
	}

	// 4. --- Fetch the ingredient lines ---
	rows, err := tx.Query(`
		SELECT item_id, quantity FROM recipe_ingredients WHERE recipe_id = ?`, recipeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipe ingredients"})
		return
	}

	type ingredientLine struct {
		itemID   int64
		quantity float64
	}
	var lines []ingredientLine
	for rows.Next() {
		var l ingredientLine
		if err := rows.Scan(&l.itemID, &l.quantity); err != nil {
			rows.Close()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan ingredient line"})
			return
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error reading ingredient lines"})
		return
	}
	if len(lines) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Recipe has no ingredients"})
		return
	}

	// 5. --- FIFO-consume every ingredient through the engine ---
	// One fifo reference ties all of this batch's ledger rows together.
	fifoRef := uuid.NewString()
	now := time.Now()
	var allShortages []inventory.Shortage

	for _, line := range lines {
		need := line.quantity * scale
		consumptions, err := inventory.Consume(tx, inventory.ConsumeParams{
			OrgID:      orgID,
			ItemID:     line.itemID,
			Quantity:   need,
			ChangeType: inventory.ChangeConsume,
			BatchID:    &batchID,
			FIFORef:    fifoRef,
			Notes:      fmt.Sprintf("Consumed by batch %s", labelCode),
			ActorID:    userID,
		})
		if err != nil {
			var shortage *inventory.ShortageError
			if errors.As(err, &shortage) {
				// Keep collecting so the maker sees the full shopping list,
				// not one item at a time.
				allShortages = append(allShortages, shortage.Shortages...)
				continue
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to consume ingredients"})
			return
		}

		// Record lineage: which lot fed this batch.
		biQuery := `
			INSERT INTO batch_ingredients (batch_id, item_id, lot_id, quantity_used, unit_cost, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`
		for _, cons := range consumptions {
			if _, err := tx.Exec(biQuery, batchID, line.itemID, cons.LotID, cons.Quantity, cons.UnitCost, now); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record batch ingredient"})
				return
			}
		}
	}

	if len(allShortages) > 0 {
		// The deferred Rollback undoes any partial consumption.
		c.JSON(http.StatusConflict, gin.H{
			"error":     "Not enough stock to start this batch",
			"shortages": allShortages,
		})
		return
	}

	// 6. --- Flip the batch to in_progress with its label ---
	_, err = tx.Exec(`
		UPDATE batches SET status = 'in_progress', label_code = ?, started_at = ?, updated_at = ?
		WHERE id = ?`, labelCode, now, now, batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start batch"})
		return
	}

	// 7. --- Commit ---
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit batch start"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Batch started",
		"batchId":   batchID,
		"labelCode": labelCode,
	})
}

type CompleteBatchInput struct {
	ActualYield float64 `json:"actualYield" binding:"required,gt=0"`
	// Optional: a 'product'-category inventory item to receive the yield
	// as a new finished-goods lot.
	OutputItemID *int64 `json:"outputItemId"`
	// Optional: a SKU of one of the org's products to credit with the
	// yield, so the sellable on-hand count tracks production.
	SKUID *int64 `json:"skuId"`
	Notes string `json:"notes"`
}

// CompleteBatch is the handler for POST /v1/org/batches/:id/complete
func (h *Handlers) CompleteBatch(c *gin.Context) {
	userID, orgID := orgScope(c)
	batchID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input CompleteBatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	// 1. --- Lock the batch & check its state ---
	var status string
	var labelCode sql.NullString
	err = tx.QueryRow(`
		SELECT status, label_code FROM batches
		WHERE id = ? AND org_id = ?
		FOR UPDATE`, batchID, orgID).Scan(&status, &labelCode)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch batch"})
		return
	}
	if status != "in_progress" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Batch is not in 'in_progress' status"})
		return
	}

	now := time.Now()

	// 2. --- Optionally bank the yield as a finished-goods lot ---
	if input.OutputItemID != nil {
		// The batch cost is what its ingredients cost, spread over the yield.
		var batchCost float64
		err := tx.QueryRow(`
			SELECT COALESCE(SUM(quantity_used * unit_cost), 0)
			FROM batch_ingredients WHERE batch_id = ?`, batchID).Scan(&batchCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute batch cost"})
			return
		}

		_, err = inventory.Restock(tx, inventory.RestockParams{
			OrgID:         orgID,
			ItemID:        *input.OutputItemID,
			LotCode:       labelCode.String,
			Quantity:      input.ActualYield,
			UnitCost:      batchCost / input.ActualYield,
			SourceBatchID: &batchID,
			ChangeType:    inventory.ChangeBatchYield,
			FIFORef:       uuid.NewString(),
			Notes:         fmt.Sprintf("Yield of batch %s", labelCode.String),
			ActorID:       userID,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to bank batch yield"})
			return
		}
	}

	// 3. --- Optionally credit a product SKU's on-hand count ---
	if input.SKUID != nil {
		// The join scopes the SKU to the caller's org through its product.
		result, err := tx.Exec(`
			UPDATE product_skus s
			JOIN products p ON s.product_id = p.id
			SET s.quantity = s.quantity + ?, s.updated_at = ?
			WHERE s.id = ? AND p.org_id = ?`,
			input.ActualYield, now, *input.SKUID, orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to credit SKU quantity"})
			return
		}
		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "SKU not found"})
			return
		}
	}

	// 4. --- Mark completed ---
	_, err = tx.Exec(`
		UPDATE batches
		SET status = 'completed', actual_yield = ?, completed_at = ?, notes = COALESCE(CONCAT_WS('\n', notes, ?), notes), updated_at = ?
		WHERE id = ?`, input.ActualYield, now, nullIfEmpty(input.Notes), now, batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete batch"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit batch completion"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Batch completed", "actualYield": input.ActualYield})
}

type AbortBatchInput struct {
	Reason string `json:"reason" binding:"required"`
}

// FailBatch is the handler for POST /v1/org/batches/:id/fail
// Consumed ingredients stay consumed - the ledger already reflects the
// physical truth, and a failed batch really did use the oils.
func (h *Handlers) FailBatch(c *gin.Context) {
	h.abortBatch(c, "in_progress", "failed")
}

// CancelBatch is the handler for POST /v1/org/batches/:id/cancel
// Only planned batches can be cancelled; nothing was consumed yet.
func (h *Handlers) CancelBatch(c *gin.Context) {
	h.abortBatch(c, "planned", "cancelled")
}

// abortBatch implements fail and cancel - same shape, different legal
// starting state.
func (h *Handlers) abortBatch(c *gin.Context, fromStatus, toStatus string) {
	_, orgID := orgScope(c)
	batchID := c.Param("id")

	var input AbortBatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	result, err := h.DB.Exec(`
		UPDATE batches
		SET status = ?, completed_at = ?, notes = COALESCE(CONCAT_WS('\n', notes, ?), notes), updated_at = ?
		WHERE id = ? AND org_id = ? AND status = ?`,
		toStatus, now, input.Reason, now, batchID, orgID, fromStatus)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update batch"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Batch not found or not in '%s' status", fromStatus)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Batch " + toStatus})
}

// GetMyBatches is the handler for GET /v1/org/batches
// Optional filter: ?status=in_progress
func (h *Handlers) GetMyBatches(c *gin.Context) {
	_, orgID := orgScope(c)

	query := `
		SELECT b.id, b.org_id, b.recipe_id, b.label_code, b.scale, b.status, b.projected_yield, b.actual_yield,
		       b.started_at, b.completed_at, b.notes, b.created_by, b.created_at, b.updated_at, r.name
		FROM batches b
		JOIN recipes r ON b.recipe_id = r.id
		WHERE b.org_id = ?`
	args := []interface{}{orgID}

	if status := c.Query("status"); status != "" {
		query += " AND b.status = ?"
		args = append(args, status)
	}
	query += " ORDER BY b.created_at DESC LIMIT 200"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch batches"})
		return
	}
	defer rows.Close()

	var batches []models.Batch
	for rows.Next() {
		var b models.Batch
		if err := rows.Scan(
			&b.ID, &b.OrgID, &b.RecipeID, &b.LabelCode, &b.Scale, &b.Status, &b.ProjectedYield, &b.ActualYield,
			&b.StartedAt, &b.CompletedAt, &b.Notes, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt, &b.RecipeName,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan batch row"})
			return
		}
		batches = append(batches, b)
	}

	if batches == nil {
		batches = []models.Batch{}
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// BatchIngredientDetail extends BatchIngredient with item and lot info.
type BatchIngredientDetail struct {
	models.BatchIngredient
	ItemName string `json:"itemName"`
	LotCode  string `json:"lotCode"`
}

// GetBatchDetails is the handler for GET /v1/org/batches/:id
// Returns the batch plus its full lot lineage and age.
func (h *Handlers) GetBatchDetails(c *gin.Context) {
	_, orgID := orgScope(c)
	batchID := c.Param("id")

	var b models.Batch
	err := h.DB.QueryRow(`
		SELECT b.id, b.org_id, b.recipe_id, b.label_code, b.scale, b.status, b.projected_yield, b.actual_yield,
		       b.started_at, b.completed_at, b.notes, b.created_by, b.created_at, b.updated_at, r.name
		FROM batches b
		JOIN recipes r ON b.recipe_id = r.id
		WHERE b.id = ? AND b.org_id = ?`, batchID, orgID).Scan(
		&b.ID, &b.OrgID, &b.RecipeID, &b.LabelCode, &b.Scale, &b.Status, &b.ProjectedYield, &b.ActualYield,
		&b.StartedAt, &b.CompletedAt, &b.Notes, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt, &b.RecipeName)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch batch"})
		return
	}

	rows, err := h.DB.Query(`
		SELECT bi.id, bi.batch_id, bi.item_id, bi.lot_id, bi.quantity_used, bi.unit_cost, bi.created_at,
		       i.name, l.lot_code
		FROM batch_ingredients bi
		JOIN inventory_items i ON bi.item_id = i.id
		JOIN inventory_lots l ON bi.lot_id = l.id
		WHERE bi.batch_id = ?`, b.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch batch ingredients"})
		return
	}
	defer rows.Close()

	var ingredients []BatchIngredientDetail
	for rows.Next() {
		var d BatchIngredientDetail
		if err := rows.Scan(&d.ID, &d.BatchID, &d.ItemID, &d.LotID, &d.QuantityUsed, &d.UnitCost, &d.CreatedAt, &d.ItemName, &d.LotCode); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan batch ingredient"})
			return
		}
		ingredients = append(ingredients, d)
	}
	if ingredients == nil {
		ingredients = []BatchIngredientDetail{}
	}

	// Age is presentation data, but clients kept computing it wrong.
	age := ""
	if b.StartedAt != nil {
		age = format.HumanDuration(time.Since(*b.StartedAt))
	}

	c.JSON(http.StatusOK, gin.H{
		"batch":       b,
		"ingredients": ingredients,
		"age":         age,
	})
}

// nextBatchLabel increments the org's monthly counter row (FOR UPDATE)
// and builds the label from the recipe's prefix. The counter row is
// created on first use of each month.
func (h *Handlers) nextBatchLabel(tx *sql.Tx, orgID, recipeID int64) (string, error) {
	now := time.Now()
	period := format.LabelPeriod(now)

	// Make sure the counter row exists, then lock it.
	_, err := tx.Exec(`
		INSERT INTO batch_label_counters (org_id, period, counter)
		VALUES (?, ?, 0)
		ON DUPLICATE KEY UPDATE counter = counter`, orgID, period)
	if err != nil {
		return "", fmt.Errorf("failed to ensure counter row: %w", err)
	}

	var counter int
	err = tx.QueryRow(`
		SELECT counter FROM batch_label_counters
		WHERE org_id = ? AND period = ?
		FOR UPDATE`, orgID, period).Scan(&counter)
	if err != nil {
		return "", fmt.Errorf("failed to lock counter: %w", err)
	}

	counter++
	_, err = tx.Exec(`
		UPDATE batch_label_counters SET counter = ?
		WHERE org_id = ? AND period = ?`, counter, orgID, period)
	if err != nil {
		return "", fmt.Errorf("failed to bump counter: %w", err)
	}

	var prefix string
	if err := tx.QueryRow("SELECT label_prefix FROM recipes WHERE id = ?", recipeID).Scan(&prefix); err != nil {
		return "", fmt.Errorf("failed to fetch label prefix: %w", err)
	}

	return format.BatchLabel(prefix, now, counter), nil
}

// checkBatchLimit counts this month's batches against max_batches_month.
func (h *Handlers) checkBatchLimit(tx *sql.Tx, orgID int64) (bool, int, error) {
	var maxBatches, current int
	err := tx.QueryRow(`
		SELECT t.max_batches_month
		FROM org_subscriptions s
		JOIN subscription_tiers t ON s.tier_id = t.id
		WHERE s.org_id = ? AND s.status IN ('trialing', 'active')
		ORDER BY s.created_at DESC LIMIT 1`, orgID).Scan(&maxBatches)
	if err != nil {
		if err == sql.ErrNoRows {
			maxBatches = 30 // solo tier default
		} else {
			return false, 0, err
		}
	}

	err = tx.QueryRow(`
		SELECT COUNT(*) FROM batches
		WHERE org_id = ? AND status != 'cancelled'
		AND created_at >= ?`, orgID, startOfMonth(time.Now())).Scan(&current)
	if err != nil {
		return false, 0, err
	}

	return current < maxBatches, maxBatches, nil
}

// startOfMonth returns midnight on the 1st in local time.
func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// nullIfEmpty maps "" to NULL so CONCAT_WS doesn't append blank lines.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
