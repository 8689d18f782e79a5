package models

import (
	"database/sql"
	"time"
)

// Product is the model for the 'products' table.
// A product is the sellable face of a recipe's output; the physical
// stock itself lives in inventory as a 'product'-category item.
type Product struct {
	ID          int64          `json:"id" db:"id"`
	OrgID       int64          `json:"orgId" db:"org_id"`
	RecipeID    *int64         `json:"recipeId,omitempty" db:"recipe_id"`
	Name        string         `json:"name" db:"name"`
	Slug        string         `json:"slug" db:"slug"`
	Description sql.NullString `json:"description,omitempty" db:"description"`
	Status      string         `json:"status" db:"status"` // 'draft', 'active', 'discontinued'
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time      `json:"updatedAt" db:"updated_at"`
}

// ProductSKU is one sellable variant of a product. SKUCode is generated
// by internal/format from org slug, product slug, variant and size.
type ProductSKU struct {
	ID          int64     `json:"id" db:"id"`
	ProductID   int64     `json:"productId" db:"product_id"`
	VariantName string    `json:"variantName" db:"variant_name"`
	SizeValue   float64   `json:"sizeValue" db:"size_value"`
	SizeUnit    string    `json:"sizeUnit" db:"size_unit"`
	SKUCode     string    `json:"skuCode" db:"sku_code"`
	RetailPrice float64   `json:"retailPrice" db:"retail_price"`
	Quantity    float64   `json:"quantity" db:"quantity"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
