package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/batchtrack/batchtrack/internal/models"
	"github.com/gin-gonic/gin"
)

//
// --- Recipe Handlers ---
//

type RecipeIngredientInput struct {
	ItemID   int64   `json:"itemId" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
	Unit     string  `json:"unit" binding:"required"`
}

type CreateRecipeInput struct {
	Name          string                  `json:"name" binding:"required"`
	LabelPrefix   string                  `json:"labelPrefix" binding:"required,max=16"`
	YieldQuantity float64                 `json:"yieldQuantity" binding:"required,gt=0"`
	YieldUnit     string                  `json:"yieldUnit" binding:"required"`
	Instructions  string                  `json:"instructions"`
	Ingredients   []RecipeIngredientInput `json:"ingredients" binding:"required,min=1,dive"`
}

// CreateRecipe is the handler for POST /v1/org/recipes
// The tier's max_recipes limit is checked inside the same transaction.
func (h *Handlers) CreateRecipe(c *gin.Context) {
	_, orgID := orgScope(c)

	var input CreateRecipeInput
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

	// 1. --- Entitlement Check: recipe count ---
	allowed, limit, err := h.checkRecipeLimit(tx, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check recipe limit"})
		return
	}
	if !allowed {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": "Your subscription tier allows at most " + strconv.Itoa(limit) + " recipes. Upgrade to add more.",
		})
		return
	}

	// 2. --- Verify every ingredient belongs to this org ---
	for _, ing := range input.Ingredients {
		var one int
		err := tx.QueryRow("SELECT 1 FROM inventory_items WHERE id = ? AND org_id = ? AND is_archived = FALSE", ing.ItemID, orgID).Scan(&one)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Ingredient item not found in your inventory"})
			return
		}
	}

	// 3. --- Insert the Recipe (draft) ---
	now := time.Now()
	var instructions *string
	if input.Instructions != "" {
		instructions = &input.Instructions
	}
	result, err := tx.Exec(`
		INSERT INTO recipes
		(org_id, name, label_prefix, yield_quantity, yield_unit, instructions, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'draft', 1, ?, ?)`,
		orgID, input.Name, strings.ToUpper(input.LabelPrefix), input.YieldQuantity, input.YieldUnit, instructions, now, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create recipe"})
		return
	}
	recipeID, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get new recipe ID"})
		return
	}

	// 4. --- Insert Ingredient Lines ---
	ingQuery := `INSERT INTO recipe_ingredients (recipe_id, item_id, quantity, unit) VALUES (?, ?, ?, ?)`
	for _, ing := range input.Ingredients {
		if _, err := tx.Exec(ingQuery, recipeID, ing.ItemID, ing.Quantity, ing.Unit); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save recipe ingredient"})
			return
		}
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit recipe"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Recipe created", "recipeId": recipeID})
}

// GetMyRecipes is the handler for GET /v1/org/recipes
// Optional filter: ?status=active
func (h *Handlers) GetMyRecipes(c *gin.Context) {
	_, orgID := orgScope(c)

	query := `
		SELECT id, org_id, name, label_prefix, yield_quantity, yield_unit, instructions, status, version, parent_recipe_id, created_at, updated_at
		FROM recipes
		WHERE org_id = ?`
	args := []interface{}{orgID}

	if status := c.Query("status"); status != "" {
		query += " AND status = ?"
		args = append(args, status)
	} else {
		query += " AND status != 'archived'"
	}
	query += " ORDER BY name ASC, version DESC"

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	defer rows.Close()

	var recipes []models.Recipe
	for rows.Next() {
		var r models.Recipe
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Name, &r.LabelPrefix, &r.YieldQuantity, &r.YieldUnit, &r.Instructions, &r.Status, &r.Version, &r.ParentRecipeID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan recipe row"})
			return
		}
		recipes = append(recipes, r)
	}

	if recipes == nil {
		recipes = []models.Recipe{}
	}
	c.JSON(http.StatusOK, gin.H{"recipes": recipes})
}

// GetRecipe is the handler for GET /v1/org/recipes/:id
// Returns the recipe together with its ingredient lines.
func (h *Handlers) GetRecipe(c *gin.Context) {
	_, orgID := orgScope(c)
	recipeID := c.Param("id")

	var r models.Recipe
	err := h.DB.QueryRow(`
		SELECT id, org_id, name, label_prefix, yield_quantity, yield_unit, instructions, status, version, parent_recipe_id, created_at, updated_at
		FROM recipes WHERE id = ? AND org_id = ?`, recipeID, orgID).Scan(
		&r.ID, &r.OrgID, &r.Name, &r.LabelPrefix, &r.YieldQuantity, &r.YieldUnit,
		&r.Instructions, &r.Status, &r.Version, &r.ParentRecipeID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipe"})
		return
	}

	ingredients, err := h.fetchRecipeIngredients(r.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ingredients"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipe": r, "ingredients": ingredients})
}

// ActivateRecipe is the handler for PATCH /v1/org/recipes/:id/activate
// Only active recipes can be batched.
func (h *Handlers) ActivateRecipe(c *gin.Context) {
	_, orgID := orgScope(c)
	recipeID := c.Param("id")

	result, err := h.DB.Exec(`
		UPDATE recipes SET status = 'active', updated_at = ?
		WHERE id = ? AND org_id = ? AND status = 'draft'`,
		time.Now(), recipeID, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to activate recipe"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found or was not a draft"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Recipe activated"})
}

// ArchiveRecipe is the handler for DELETE /v1/org/recipes/:id
// Soft delete: batch history keeps pointing at the archived version.
func (h *Handlers) ArchiveRecipe(c *gin.Context) {
	_, orgID := orgScope(c)
	recipeID := c.Param("id")

	result, err := h.DB.Exec(`
		UPDATE recipes SET status = 'archived', updated_at = ?
		WHERE id = ? AND org_id = ? AND status != 'archived'`,
		time.Now(), recipeID, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive recipe"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Recipe archived"})
}

// NewRecipeVersion is the handler for POST /v1/org/recipes/:id/versions
// Copies the recipe and its ingredients into a new draft row with
// version+1, archives the old one, and links lineage via parent_recipe_id.
func (h *Handlers) NewRecipeVersion(c *gin.Context) {
	_, orgID := orgScope(c)
	recipeID := c.Param("id")

	var input CreateRecipeInput
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

	// 1. --- Fetch & Lock the current version ---
	var parentID int64
	var version int
	err = tx.QueryRow(`
		SELECT id, version FROM recipes
		WHERE id = ? AND org_id = ? AND status != 'archived'
		FOR UPDATE`, recipeID, orgID).Scan(&parentID, &version)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipe not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipe"})
		return
	}

	// 2. --- Insert the new version ---
	now := time.Now()
	var instructions *string
	if input.Instructions != "" {
		instructions = &input.Instructions
	}
	result, err := tx.Exec(`
		INSERT INTO recipes
		(org_id, name, label_prefix, yield_quantity, yield_unit, instructions, status, version, parent_recipe_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'draft', ?, ?, ?, ?)`,
		orgID, input.Name, strings.ToUpper(input.LabelPrefix), input.YieldQuantity, input.YieldUnit,
		instructions, version+1, parentID, now, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create new version"})
		return
	}
	newID, _ := result.LastInsertId()

	ingQuery := `INSERT INTO recipe_ingredients (recipe_id, item_id, quantity, unit) VALUES (?, ?, ?, ?)`
	for _, ing := range input.Ingredients {
		if _, err := tx.Exec(ingQuery, newID, ing.ItemID, ing.Quantity, ing.Unit); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save recipe ingredient"})
			return
		}
	}

	// 3. --- Archive the old version ---
	_, err = tx.Exec("UPDATE recipes SET status = 'archived', updated_at = ? WHERE id = ?", now, parentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive old version"})
		return
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit new version"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "New recipe version created", "recipeId": newID, "version": version + 1})
}

// fetchRecipeIngredients loads ingredient lines with item names attached.
func (h *Handlers) fetchRecipeIngredients(recipeID int64) ([]models.RecipeIngredient, error) {
	rows, err := h.DB.Query(`
		SELECT ri.id, ri.recipe_id, ri.item_id, ri.quantity, ri.unit, i.name
		FROM recipe_ingredients ri
		JOIN inventory_items i ON ri.item_id = i.id
		WHERE ri.recipe_id = ?`, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ingredients []models.RecipeIngredient
	for rows.Next() {
		var ing models.RecipeIngredient
		if err := rows.Scan(&ing.ID, &ing.RecipeID, &ing.ItemID, &ing.Quantity, &ing.Unit, &ing.ItemName); err != nil {
			return nil, err
		}
		ingredients = append(ingredients, ing)
	}
	if ingredients == nil {
		ingredients = []models.RecipeIngredient{}
	}
	return ingredients, rows.Err()
}

// checkRecipeLimit counts non-archived recipes against the tier's max_recipes.
func (h *Handlers) checkRecipeLimit(tx *sql.Tx, orgID int64) (bool, int, error) {
	var maxRecipes, current int
	err := tx.QueryRow(`
		SELECT t.max_recipes
		FROM org_subscriptions s
		JOIN subscription_tiers t ON s.tier_id = t.id
		WHERE s.org_id = ? AND s.status IN ('trialing', 'active')
		ORDER BY s.created_at DESC LIMIT 1`, orgID).Scan(&maxRecipes)
	if err != nil {
		if err == sql.ErrNoRows {
			maxRecipes = 25 // solo tier default
		} else {
			return false, 0, err
		}
	}

	err = tx.QueryRow("SELECT COUNT(*) FROM recipes WHERE org_id = ? AND status != 'archived'", orgID).Scan(&current)
	if err != nil {
		return false, 0, err
	}

	return current < maxRecipes, maxRecipes, nil
}
