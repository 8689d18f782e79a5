package models

import (
	"database/sql"
	"time"
)

// InventoryItem is the model for the 'inventory_items' table.
// StockQuantity is a cached roll-up of the item's lot remainders;
// only internal/inventory is allowed to change it.
type InventoryItem struct {
	ID                int64          `json:"id" db:"id"`
	OrgID             int64          `json:"orgId" db:"org_id"`
	Name              string         `json:"name" db:"name"`
	Description       sql.NullString `json:"description,omitempty" db:"description"`
	SKU               sql.NullString `json:"sku,omitempty" db:"sku"`
	Category          string         `json:"category" db:"category"` // 'ingredient', 'container', 'packaging', 'product'
	Unit              string         `json:"unit" db:"unit"`         // 'g', 'ml', 'unit', ...
	StockQuantity     float64        `json:"stockQuantity" db:"stock_quantity"`
	CostPerUnit       float64        `json:"costPerUnit" db:"cost_per_unit"`
	LowStockThreshold float64        `json:"lowStockThreshold" db:"low_stock_threshold"`
	IsArchived        bool           `json:"isArchived" db:"is_archived"`
	CreatedAt         time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time      `json:"updatedAt" db:"updated_at"`
}
