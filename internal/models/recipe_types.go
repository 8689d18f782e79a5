package models

import (
	"database/sql"
	"time"
)

// Recipe is the model for the 'recipes' table.
// A new version is a NEW row whose parent_recipe_id points at the old one;
// old versions are archived so batch history keeps its exact recipe.
type Recipe struct {
	ID             int64          `json:"id" db:"id"`
	OrgID          int64          `json:"orgId" db:"org_id"`
	Name           string         `json:"name" db:"name"`
	LabelPrefix    string         `json:"labelPrefix" db:"label_prefix"`
	YieldQuantity  float64        `json:"yieldQuantity" db:"yield_quantity"`
	YieldUnit      string         `json:"yieldUnit" db:"yield_unit"`
	Instructions   sql.NullString `json:"instructions,omitempty" db:"instructions"`
	Status         string         `json:"status" db:"status"` // 'draft', 'active', 'archived'
	Version        int            `json:"version" db:"version"`
	ParentRecipeID *int64         `json:"parentRecipeId,omitempty" db:"parent_recipe_id"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
}

// RecipeIngredient is one line of a recipe, referencing an inventory item.
type RecipeIngredient struct {
	ID       int64   `json:"id" db:"id"`
	RecipeID int64   `json:"recipeId" db:"recipe_id"`
	ItemID   int64   `json:"itemId" db:"item_id"`
	Quantity float64 `json:"quantity" db:"quantity"`
	Unit     string  `json:"unit" db:"unit"`

	// Populated by handlers for display, not a DB column.
	ItemName string `json:"itemName,omitempty" db:"-"`
}
