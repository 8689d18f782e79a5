package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/batchtrack/batchtrack/internal/models"
	"github.com/gin-gonic/gin"
)

//
// --- Admin & Settings Handlers ---
//

// GetSettings is the handler for GET /v1/admin/settings (platform admin).
// Returns the global rows (org_id IS NULL).
func (h *Handlers) GetSettings(c *gin.Context) {
	rows, err := h.DB.Query(`
		SELECT id, org_id, setting_key, setting_value, updated_at
		FROM settings WHERE org_id IS NULL
		ORDER BY setting_key ASC`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
		return
	}
	defer rows.Close()

	var settings []models.Setting
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.ID, &s.OrgID, &s.SettingKey, &s.SettingValue, &s.UpdatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan setting row"})
			return
		}
		settings = append(settings, s)
	}

	if settings == nil {
		settings = []models.Setting{}
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

type UpdateSettingInput struct {
	Value string `json:"value" binding:"required"`
}

// UpdateSetting is the handler for PUT /v1/admin/settings/:key
// Upserts a global setting. "maintenance_mode" = "true" locks out every
// non-admin request at the auth middleware.
func (h *Handlers) UpdateSetting(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Setting key is required"})
		return
	}

	var input UpdateSettingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	result, err := h.DB.Exec(`
		UPDATE settings SET setting_value = ?, updated_at = ?
		WHERE org_id IS NULL AND setting_key = ?`, input.Value, now, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update setting"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		_, err = h.DB.Exec(`
			INSERT INTO settings (org_id, setting_key, setting_value, updated_at)
			VALUES (NULL, ?, ?, ?)`, key, input.Value, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create setting"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Setting updated", "key": key, "value": input.Value})
}

type UpsertTierInput struct {
	Name            string  `json:"name" binding:"required"`
	Description     string  `json:"description"`
	MonthlyPrice    float64 `json:"monthlyPrice" binding:"gte=0"`
	MaxUsers        int     `json:"maxUsers" binding:"required,gt=0"`
	MaxRecipes      int     `json:"maxRecipes" binding:"required,gt=0"`
	MaxBatchesMonth int     `json:"maxBatchesMonth" binding:"required,gt=0"`
	IsPublic        *bool   `json:"isPublic" binding:"required"`
}

// UpsertTier is the handler for PUT /v1/admin/tiers/:key
// Creates or edits a subscription tier. Orgs already on the tier pick up
// the new limits on their next entitlement check; nothing is re-billed.
func (h *Handlers) UpsertTier(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tier key is required"})
		return
	}

	var input UpsertTierInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	result, err := h.DB.Exec(`
		UPDATE subscription_tiers
		SET name = ?, description = ?, monthly_price = ?, max_users = ?, max_recipes = ?, max_batches_month = ?, is_public = ?, updated_at = ?
		WHERE tier_key = ?`,
		input.Name, input.Description, input.MonthlyPrice, input.MaxUsers,
		input.MaxRecipes, input.MaxBatchesMonth, *input.IsPublic, now, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update tier"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		_, err = h.DB.Exec(`
			INSERT INTO subscription_tiers
			(tier_key, name, description, monthly_price, max_users, max_recipes, max_batches_month, is_public, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			key, input.Name, input.Description, input.MonthlyPrice, input.MaxUsers,
			input.MaxRecipes, input.MaxBatchesMonth, *input.IsPublic, now, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tier"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "Tier created", "tierKey": key})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Tier updated", "tierKey": key})
}

type JoinWaitlistInput struct {
	Email  string `json:"email" binding:"required,email"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

// JoinWaitlist is the handler for POST /v1/waitlist (public, rate-limited).
// A duplicate email gets the same success message as a new one.
func (h *Handlers) JoinWaitlist(c *gin.Context) {
	var input JoinWaitlistInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source := input.Source
	if source == "" {
		source = "landing"
	}

	_, err := h.DB.Exec(`
		INSERT INTO waitlist (email, name, source, created_at)
		VALUES (?, ?, ?, ?)`, strings.ToLower(input.Email), input.Name, source, time.Now())
	if err != nil && !strings.Contains(err.Error(), "Duplicate entry") {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join waitlist"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "You're on the list. We'll be in touch."})
}

// GetWaitlist is the handler for GET /v1/admin/waitlist (platform admin).
func (h *Handlers) GetWaitlist(c *gin.Context) {
	rows, err := h.DB.Query(`
		SELECT id, email, name, source, created_at
		FROM waitlist ORDER BY created_at DESC LIMIT 500`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch waitlist"})
		return
	}
	defer rows.Close()

	var entries []models.WaitlistEntry
	for rows.Next() {
		var e models.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.Email, &e.Name, &e.Source, &e.CreatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan waitlist row"})
			return
		}
		entries = append(entries, e)
	}

	if entries == nil {
		entries = []models.WaitlistEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"waitlist": entries})
}

// GetPlatformStats is the handler for GET /v1/admin/stats (platform admin).
// Top-line numbers for the whole install.
func (h *Handlers) GetPlatformStats(c *gin.Context) {
	var stats struct {
		Organizations   int64 `json:"organizations"`
		ActiveUsers     int64 `json:"activeUsers"`
		ActiveSubs      int64 `json:"activeSubscriptions"`
		BatchesThisWeek int64 `json:"batchesThisWeek"`
		WaitlistSize    int64 `json:"waitlistSize"`
	}

	queries := []struct {
		dest  *int64
		query string
		args  []interface{}
	}{
		{&stats.Organizations, "SELECT COUNT(*) FROM organizations", nil},
		{&stats.ActiveUsers, "SELECT COUNT(*) FROM users WHERE status = 'active'", nil},
		{&stats.ActiveSubs, "SELECT COUNT(*) FROM org_subscriptions WHERE status IN ('trialing', 'active')", nil},
		{&stats.BatchesThisWeek, "SELECT COUNT(*) FROM batches WHERE created_at >= ?", []interface{}{time.Now().AddDate(0, 0, -7)}},
		{&stats.WaitlistSize, "SELECT COUNT(*) FROM waitlist", nil},
	}

	for _, q := range queries {
		if err := h.DB.QueryRow(q.query, q.args...).Scan(q.dest); err != nil && err != sql.ErrNoRows {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to gather platform stats"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// ListOrganizations is the handler for GET /v1/admin/organizations
// (platform admin). Includes each org's current subscription for triage.
func (h *Handlers) ListOrganizations(c *gin.Context) {
	rows, err := h.DB.Query(`
		SELECT o.id, o.name, o.slug, o.created_at, COALESCE(t.name, ''), COALESCE(s.status, '')
		FROM organizations o
		LEFT JOIN org_subscriptions s ON s.org_id = o.id
		LEFT JOIN subscription_tiers t ON s.tier_id = t.id
		ORDER BY o.created_at DESC LIMIT 500`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch organizations"})
		return
	}
	defer rows.Close()

	type orgRow struct {
		ID                 int64     `json:"id"`
		Name               string    `json:"name"`
		Slug               string    `json:"slug"`
		CreatedAt          time.Time `json:"createdAt"`
		TierName           string    `json:"tierName"`
		SubscriptionStatus string    `json:"subscriptionStatus"`
	}
	var orgs []orgRow
	for rows.Next() {
		var o orgRow
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedAt, &o.TierName, &o.SubscriptionStatus); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan organization row"})
			return
		}
		orgs = append(orgs, o)
	}

	if orgs == nil {
		orgs = []orgRow{}
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}
