package models

import (
	"database/sql"
	"time"
)

// Batch is the model for the 'batches' table.
// Lifecycle: planned -> in_progress -> completed / failed / cancelled.
// LabelCode is assigned at start time (not plan time) from the per-org
// monthly label counter, so abandoned plans never burn a label.
type Batch struct {
	ID             int64          `json:"id" db:"id"`
	OrgID          int64          `json:"orgId" db:"org_id"`
	RecipeID       int64          `json:"recipeId" db:"recipe_id"`
	LabelCode      sql.NullString `json:"labelCode,omitempty" db:"label_code"`
	Scale          float64        `json:"scale" db:"scale"`
	Status         string         `json:"status" db:"status"`
	ProjectedYield float64        `json:"projectedYield" db:"projected_yield"`
	ActualYield    *float64       `json:"actualYield,omitempty" db:"actual_yield"`
	StartedAt      *time.Time     `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
	Notes          sql.NullString `json:"notes,omitempty" db:"notes"`
	CreatedBy      int64          `json:"createdBy" db:"created_by"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`

	// Populated by handlers for display.
	RecipeName string `json:"recipeName,omitempty" db:"-"`
}

// BatchIngredient records which lot a batch actually drew from, one row
// per (ingredient, lot) pair consumed. This is the lineage the FIFO
// engine leaves behind.
type BatchIngredient struct {
	ID           int64     `json:"id" db:"id"`
	BatchID      int64     `json:"batchId" db:"batch_id"`
	ItemID       int64     `json:"itemId" db:"item_id"`
	LotID        int64     `json:"lotId" db:"lot_id"`
	QuantityUsed float64   `json:"quantityUsed" db:"quantity_used"`
	UnitCost     float64   `json:"unitCost" db:"unit_cost"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
