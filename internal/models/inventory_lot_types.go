package models

import "time"

// InventoryLot is the model for the 'inventory_lots' table.
// One row per receipt of stock. FIFO consumption drains lots
// oldest received_at first, so RemainingQuantity only ever shrinks
// (except on recount corrections).
type InventoryLot struct {
	ID                int64      `json:"id" db:"id"`
	OrgID             int64      `json:"orgId" db:"org_id"`
	ItemID            int64      `json:"itemId" db:"item_id"`
	LotCode           string     `json:"lotCode" db:"lot_code"`
	OriginalQuantity  float64    `json:"originalQuantity" db:"original_quantity"`
	RemainingQuantity float64    `json:"remainingQuantity" db:"remaining_quantity"`
	UnitCost          float64    `json:"unitCost" db:"unit_cost"`
	ReceivedAt        time.Time  `json:"receivedAt" db:"received_at"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	SourceBatchID     *int64     `json:"sourceBatchId,omitempty" db:"source_batch_id"`
	CreatedAt         time.Time  `json:"createdAt" db:"created_at"`
}
