package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/batchtrack/batchtrack/internal/inventory"
	"github.com/batchtrack/batchtrack/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

//
// --- Inventory Item Handlers ---
//
// Note: none of these touch quantities directly. Every stock change goes
// through internal/inventory inside a transaction; handlers only open the
// transaction and translate errors into HTTP responses.
//

type CreateInventoryItemInput struct {
	Name              string  `json:"name" binding:"required"`
	Description       string  `json:"description"`
	SKU               string  `json:"sku"`
	Category          string  `json:"category" binding:"required,oneof=ingredient container packaging product"`
	Unit              string  `json:"unit" binding:"required"`
	CostPerUnit       float64 `json:"costPerUnit" binding:"gte=0"`
	LowStockThreshold float64 `json:"lowStockThreshold" binding:"gte=0"`
}

// CreateInventoryItem is the handler for POST /v1/org/inventory
func (h *Handlers) CreateInventoryItem(c *gin.Context) {
	_, orgID := orgScope(c)

	var input CreateInventoryItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	var sku, description *string
	if input.SKU != "" {
		sku = &input.SKU
	}
	if input.Description != "" {
		description = &input.Description
	}

	result, err := h.DB.Exec(`
		INSERT INTO inventory_items
		(org_id, name, description, sku, category, unit, stock_quantity, cost_per_unit, low_stock_threshold, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, FALSE, ?, ?)`,
		orgID, input.Name, description, sku, input.Category, input.Unit,
		input.CostPerUnit, input.LowStockThreshold, now, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create inventory item"})
		return
	}
	itemID, _ := result.LastInsertId()

	c.JSON(http.StatusCreated, gin.H{"message": "Inventory item created", "itemId": itemID})
}

// GetMyInventoryItems is the handler for GET /v1/org/inventory
// Optional filters: ?category=ingredient  ?low_stock=true
func (h *Handlers) GetMyInventoryItems(c *gin.Context) {
	_, orgID := orgScope(c)

	query := `
		SELECT id, org_id, name, description, sku, category, unit, stock_quantity, cost_per_unit, low_stock_threshold, is_archived, created_at, updated_at
		FROM inventory_items
		WHERE org_id = ? AND is_archived = FALSE`
	args := []interface{}{orgID}

	if category := c.Query("category"); category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	if c.Query("low_stock") == "true" {
		query += " AND stock_quantity <= low_stock_threshold"
	}
	query += " ORDER BY name ASC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	defer rows.Close()

	var items []models.InventoryItem
	for rows.Next() {
		var item models.InventoryItem
		if err := rows.Scan(
			&item.ID, &item.OrgID, &item.Name, &item.Description, &item.SKU,
			&item.Category, &item.Unit, &item.StockQuantity, &item.CostPerUnit,
			&item.LowStockThreshold, &item.IsArchived, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan inventory row"})
			return
		}
		items = append(items, item)
	}

	if items == nil {
		items = []models.InventoryItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type UpdateInventoryItemInput struct {
	Name              *string  `json:"name"`
	Description       *string  `json:"description"`
	SKU               *string  `json:"sku"`
	Unit              *string  `json:"unit"`
	CostPerUnit       *float64 `json:"costPerUnit" binding:"omitempty,gte=0"`
	LowStockThreshold *float64 `json:"lowStockThreshold" binding:"omitempty,gte=0"`
}

// UpdateInventoryItem is the handler for PUT /v1/org/inventory/:id
// Deliberately cannot touch stock_quantity - that is the engine's job.
func (h *Handlers) UpdateInventoryItem(c *gin.Context) {
	_, orgID := orgScope(c)
	itemID := c.Param("id")

	var input UpdateInventoryItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	setClauses := ""
	args := []interface{}{}
	appendSet := func(clause string, val interface{}) {
		if setClauses != "" {
			setClauses += ", "
		}
		setClauses += clause
		args = append(args, val)
	}
	if input.Name != nil {
		appendSet("name = ?", *input.Name)
	}
	if input.Description != nil {
		appendSet("description = ?", *input.Description)
	}
	if input.SKU != nil {
		appendSet("sku = ?", *input.SKU)
	}
	if input.Unit != nil {
		appendSet("unit = ?", *input.Unit)
	}
	if input.CostPerUnit != nil {
		appendSet("cost_per_unit = ?", *input.CostPerUnit)
	}
	if input.LowStockThreshold != nil {
		appendSet("low_stock_threshold = ?", *input.LowStockThreshold)
	}
	if setClauses == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}
	appendSet("updated_at = ?", time.Now())
	args = append(args, itemID, orgID)

	result, err := h.DB.Exec("UPDATE inventory_items SET "+setClauses+" WHERE id = ? AND org_id = ?", args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update inventory item"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inventory item not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Inventory item updated"})
}

// ArchiveInventoryItem is the handler for DELETE /v1/org/inventory/:id
// Soft delete only: history and lot lineage must survive.
func (h *Handlers) ArchiveInventoryItem(c *gin.Context) {
	_, orgID := orgScope(c)
	itemID := c.Param("id")

	result, err := h.DB.Exec(`
		UPDATE inventory_items SET is_archived = TRUE, updated_at = ?
		WHERE id = ? AND org_id = ? AND is_archived = FALSE`,
		time.Now(), itemID, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive inventory item"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Inventory item not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Inventory item archived"})
}

//
// --- Stock Movement Handlers (all delegate to the FIFO engine) ---
//

type RestockInput struct {
	Quantity  float64    `json:"quantity" binding:"required,gt=0"`
	UnitCost  float64    `json:"unitCost" binding:"gte=0"`
	LotCode   string     `json:"lotCode"`
	ExpiresAt *time.Time `json:"expiresAt"`
	Notes     string     `json:"notes"`
}

// RestockItem is the handler for POST /v1/org/inventory/:id/restock
func (h *Handlers) RestockItem(c *gin.Context) {
	userID, orgID := orgScope(c)
	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input RestockInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lotCode := input.LotCode
	if lotCode == "" {
		lotCode = "LOT-" + time.Now().Format("20060102-150405")
	}

	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	lotID, err := inventory.Restock(tx, inventory.RestockParams{
		OrgID:     orgID,
		ItemID:    itemID,
		LotCode:   lotCode,
		Quantity:  input.Quantity,
		UnitCost:  input.UnitCost,
		ExpiresAt: input.ExpiresAt,
		FIFORef:   uuid.NewString(),
		Notes:     input.Notes,
		ActorID:   userID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restock item"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit restock"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Stock received", "lotId": lotID})
}

type RecountInput struct {
	Counted float64 `json:"counted" binding:"gte=0"`
	Notes   string  `json:"notes"`
}

// RecountItem is the handler for POST /v1/org/inventory/:id/recount
func (h *Handlers) RecountItem(c *gin.Context) {
	userID, orgID := orgScope(c)
	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input RecountInput
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

	delta, err := inventory.Recount(tx, inventory.RecountParams{
		OrgID:   orgID,
		ItemID:  itemID,
		Counted: input.Counted,
		FIFORef: uuid.NewString(),
		Notes:   input.Notes,
		ActorID: userID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to recount item"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit recount"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Recount recorded", "delta": delta})
}

type WriteOffInput struct {
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
	Reason   string  `json:"reason" binding:"required,oneof=spoil trash"`
	Notes    string  `json:"notes"`
}

// WriteOffItem is the handler for POST /v1/org/inventory/:id/write-off
// Spoilage and trash both drain FIFO; only the ledger change_type differs.
func (h *Handlers) WriteOffItem(c *gin.Context) {
	userID, orgID := orgScope(c)
	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input WriteOffInput
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

	_, err = inventory.Consume(tx, inventory.ConsumeParams{
		OrgID:      orgID,
		ItemID:     itemID,
		Quantity:   input.Quantity,
		ChangeType: input.Reason,
		FIFORef:    uuid.NewString(),
		Notes:      input.Notes,
		ActorID:    userID,
	})
	if err != nil {
		var shortage *inventory.ShortageError
		if errors.As(err, &shortage) {
			c.JSON(http.StatusConflict, gin.H{"error": shortage.Error(), "shortages": shortage.Shortages})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write off stock"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit write-off"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Stock written off"})
}

//
// --- Lot & History Retrieval ---
//

// GetItemLots is the handler for GET /v1/org/inventory/:id/lots
func (h *Handlers) GetItemLots(c *gin.Context) {
	_, orgID := orgScope(c)
	itemID := c.Param("id")

	rows, err := h.DB.Query(`
		SELECT l.id, l.org_id, l.item_id, l.lot_code, l.original_quantity, l.remaining_quantity, l.unit_cost, l.received_at, l.expires_at, l.source_batch_id, l.created_at
		FROM inventory_lots l
		JOIN inventory_items i ON l.item_id = i.id
		WHERE l.item_id = ? AND i.org_id = ?
		ORDER BY l.received_at ASC, l.id ASC`, itemID, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch lots"})
		return
	}
	defer rows.Close()

	var lots []models.InventoryLot
	for rows.Next() {
		var l models.InventoryLot
		if err := rows.Scan(&l.ID, &l.OrgID, &l.ItemID, &l.LotCode, &l.OriginalQuantity, &l.RemainingQuantity, &l.UnitCost, &l.ReceivedAt, &l.ExpiresAt, &l.SourceBatchID, &l.CreatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan lot row"})
			return
		}
		lots = append(lots, l)
	}

	if lots == nil {
		lots = []models.InventoryLot{}
	}
	c.JSON(http.StatusOK, gin.H{"lots": lots})
}

// GetItemHistory is the handler for GET /v1/org/inventory/:id/history
// Returns the adjustment ledger, newest first.
func (h *Handlers) GetItemHistory(c *gin.Context) {
	_, orgID := orgScope(c)
	itemID := c.Param("id")

	rows, err := h.DB.Query(`
		SELECT id, org_id, item_id, lot_id, batch_id, change_type, quantity_delta, quantity_after, fifo_reference_id, notes, created_by, created_at
		FROM inventory_adjustments
		WHERE item_id = ? AND org_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 200`, itemID, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}
	defer rows.Close()

	var history []models.InventoryAdjustment
	for rows.Next() {
		var a models.InventoryAdjustment
		if err := rows.Scan(&a.ID, &a.OrgID, &a.ItemID, &a.LotID, &a.BatchID, &a.ChangeType, &a.QuantityDelta, &a.QuantityAfter, &a.FIFOReferenceID, &a.Notes, &a.CreatedBy, &a.CreatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan history row"})
			return
		}
		history = append(history, a)
	}

	if history == nil {
		history = []models.InventoryAdjustment{}
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// paramID parses a numeric :id param, answering 400 itself on garbage.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " parameter"})
		return 0, false
	}
	return id, true
}
