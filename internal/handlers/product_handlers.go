package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/batchtrack/batchtrack/internal/format"
	"github.com/batchtrack/batchtrack/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
)

//
// --- Product Handlers ---
//

type CreateProductInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	RecipeID    *int64 `json:"recipeId"`
}

// CreateProduct is the handler for POST /v1/org/products
func (h *Handlers) CreateProduct(c *gin.Context) {
	_, orgID := orgScope(c)

	var input CreateProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 1. --- Verify the recipe belongs to us, if one was linked ---
	if input.RecipeID != nil {
		var exists int
		err := h.DB.QueryRow("SELECT 1 FROM recipes WHERE id = ? AND org_id = ?", *input.RecipeID, orgID).Scan(&exists)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Linked recipe not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify recipe"})
			return
		}
	}

	// 2. --- Slug uniqueness within the org ---
	productSlug := slug.Make(input.Name)
	var taken int
	err := h.DB.QueryRow("SELECT 1 FROM products WHERE org_id = ? AND slug = ?", orgID, productSlug).Scan(&taken)
	if err != nil && err != sql.ErrNoRows {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check product name"})
		return
	}
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "A product with this name already exists"})
		return
	}

	now := time.Now()
	result, err := h.DB.Exec(`
		INSERT INTO products (org_id, recipe_id, name, slug, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'draft', ?, ?)`,
		orgID, input.RecipeID, input.Name, productSlug, nullIfEmpty(input.Description), now, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
		return
	}
	productID, _ := result.LastInsertId()

	c.JSON(http.StatusCreated, gin.H{"message": "Product created", "productId": productID, "slug": productSlug})
}

// GetMyProducts is the handler for GET /v1/org/products
func (h *Handlers) GetMyProducts(c *gin.Context) {
	_, orgID := orgScope(c)

	query := `
		SELECT id, org_id, recipe_id, name, slug, description, status, created_at, updated_at
		FROM products WHERE org_id = ?`
	args := []interface{}{orgID}

	if status := c.Query("status"); status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY name ASC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
		return
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.OrgID, &p.RecipeID, &p.Name, &p.Slug, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan product row"})
			return
		}
		products = append(products, p)
	}

	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

type UpdateProductInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	RecipeID    *int64  `json:"recipeId"`
}

// UpdateProduct is the handler for PUT /v1/org/products/:id
// Renaming deliberately does NOT regenerate existing SKU codes; printed
// labels are out in the world.
func (h *Handlers) UpdateProduct(c *gin.Context) {
	_, orgID := orgScope(c)
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input UpdateProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var sets []string
	var args []interface{}
	appendSet := func(clause string, val interface{}) {
		sets = append(sets, clause)
		args = append(args, val)
	}

	if input.Name != nil {
		appendSet("name = ?", *input.Name)
		appendSet("slug = ?", slug.Make(*input.Name))
	}
	if input.Description != nil {
		appendSet("description = ?", *input.Description)
	}
	if input.Status != nil {
		switch *input.Status {
		case "draft", "active", "discontinued":
			appendSet("status = ?", *input.Status)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Status must be 'draft', 'active' or 'discontinued'"})
			return
		}
	}
	if input.RecipeID != nil {
		appendSet("recipe_id = ?", *input.RecipeID)
	}
	if len(sets) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}
	appendSet("updated_at = ?", time.Now())

	query := "UPDATE products SET " + strings.Join(sets, ", ") + " WHERE id = ? AND org_id = ?"
	args = append(args, productID, orgID)

	result, err := h.DB.Exec(query, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update product"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Product updated"})
}

type CreateSKUInput struct {
	VariantName string  `json:"variantName"`
	SizeValue   float64 `json:"sizeValue" binding:"required,gt=0"`
	SizeUnit    string  `json:"sizeUnit" binding:"required"`
	RetailPrice float64 `json:"retailPrice" binding:"gte=0"`
}

// CreateProductSKU is the handler for POST /v1/org/products/:id/skus
// The SKU code is generated, never typed: ORGSLUG-PRODSLUG-VARIANT-SIZE.
func (h *Handlers) CreateProductSKU(c *gin.Context) {
	_, orgID := orgScope(c)
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var input CreateSKUInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 1. --- Fetch the product and its org's slug in one go ---
	var productName, orgSlug string
	err := h.DB.QueryRow(`
		SELECT p.name, o.slug
		FROM products p
		JOIN organizations o ON p.org_id = o.id
		WHERE p.id = ? AND p.org_id = ?`, productID, orgID).Scan(&productName, &orgSlug)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch product"})
		return
	}

	// 2. --- Generate & insert; the unique key catches duplicates ---
	skuCode := format.SKUCode(orgSlug, productName, input.VariantName, input.SizeValue, input.SizeUnit)
	now := time.Now()
	result, err := h.DB.Exec(`
		INSERT INTO product_skus (product_id, variant_name, size_value, size_unit, sku_code, retail_price, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		productID, input.VariantName, input.SizeValue, input.SizeUnit, skuCode, input.RetailPrice, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			c.JSON(http.StatusConflict, gin.H{"error": "This SKU already exists", "skuCode": skuCode})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create SKU"})
		return
	}
	skuID, _ := result.LastInsertId()

	c.JSON(http.StatusCreated, gin.H{"message": "SKU created", "skuId": skuID, "skuCode": skuCode})
}

// GetProductSKUs is the handler for GET /v1/org/products/:id/skus
func (h *Handlers) GetProductSKUs(c *gin.Context) {
	_, orgID := orgScope(c)
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	rows, err := h.DB.Query(`
		SELECT s.id, s.product_id, s.variant_name, s.size_value, s.size_unit, s.sku_code, s.retail_price, s.quantity, s.created_at, s.updated_at
		FROM product_skus s
		JOIN products p ON s.product_id = p.id
		WHERE s.product_id = ? AND p.org_id = ?
		ORDER BY s.sku_code ASC`, productID, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch SKUs"})
		return
	}
	defer rows.Close()

	var skus []models.ProductSKU
	for rows.Next() {
		var s models.ProductSKU
		if err := rows.Scan(&s.ID, &s.ProductID, &s.VariantName, &s.SizeValue, &s.SizeUnit, &s.SKUCode, &s.RetailPrice, &s.Quantity, &s.CreatedAt, &s.UpdatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan SKU row"})
			return
		}
		skus = append(skus, s)
	}

	if skus == nil {
		skus = []models.ProductSKU{}
	}
	c.JSON(http.StatusOK, gin.H{"skus": skus})
}
