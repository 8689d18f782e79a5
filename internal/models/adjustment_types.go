package models

import "time"

// InventoryAdjustment is the model for the 'inventory_adjustments' table.
// This is an append-only ledger: every stock change writes exactly one row
// here, and the item's cached stock_quantity is only ever derived from it.
type InventoryAdjustment struct {
	ID              int64     `json:"id" db:"id"`
	OrgID           int64     `json:"orgId" db:"org_id"`
	ItemID          int64     `json:"itemId" db:"item_id"`
	LotID           *int64    `json:"lotId,omitempty" db:"lot_id"`
	BatchID         *int64    `json:"batchId,omitempty" db:"batch_id"`
	ChangeType      string    `json:"changeType" db:"change_type"` // 'restock', 'consume', 'spoil', 'trash', 'recount', 'batch_yield'
	QuantityDelta   float64   `json:"quantityDelta" db:"quantity_delta"`
	QuantityAfter   float64   `json:"quantityAfter" db:"quantity_after"`
	FIFOReferenceID string    `json:"fifoReferenceId" db:"fifo_reference_id"`
	Notes           string    `json:"notes" db:"notes"`
	CreatedBy       int64     `json:"createdBy" db:"created_by"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}
