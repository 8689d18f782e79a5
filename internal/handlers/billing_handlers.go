package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/batchtrack/batchtrack/internal/models"
	"github.com/gin-gonic/gin"
)

//
// --- Billing Handlers ---
//

// GetSubscriptionTiers is the handler for GET /v1/tiers (public).
// Only publicly listed tiers are returned; grandfathered ones stay hidden.
func (h *Handlers) GetSubscriptionTiers(c *gin.Context) {
	rows, err := h.DB.Query(`
		SELECT id, tier_key, name, description, monthly_price, max_users, max_recipes, max_batches_month, is_public, created_at, updated_at
		FROM subscription_tiers
		WHERE is_public = TRUE
		ORDER BY monthly_price ASC`)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tiers"})
		return
	}
	defer rows.Close()

	var tiers []models.SubscriptionTier
	for rows.Next() {
		var t models.SubscriptionTier
		if err := rows.Scan(&t.ID, &t.TierKey, &t.Name, &t.Description, &t.MonthlyPrice, &t.MaxUsers, &t.MaxRecipes, &t.MaxBatchesMonth, &t.IsPublic, &t.CreatedAt, &t.UpdatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan tier row"})
			return
		}
		tiers = append(tiers, t)
	}

	if tiers == nil {
		tiers = []models.SubscriptionTier{}
	}
	c.JSON(http.StatusOK, gin.H{"tiers": tiers})
}

// GetMySubscription is the handler for GET /v1/org/subscription
func (h *Handlers) GetMySubscription(c *gin.Context) {
	_, orgID := orgScope(c)

	var sub models.OrgSubscription
	err := h.DB.QueryRow(`
		SELECT s.id, s.org_id, s.tier_id, s.status, s.provider, s.provider_ref, s.expires_at, s.created_at, s.updated_at, t.name
		FROM org_subscriptions s
		JOIN subscription_tiers t ON s.tier_id = t.id
		WHERE s.org_id = ?
		ORDER BY s.created_at DESC LIMIT 1`, orgID).Scan(
		&sub.ID, &sub.OrgID, &sub.TierID, &sub.Status, &sub.Provider, &sub.ProviderRef, &sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt, &sub.TierName)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "No subscription found for your organization"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// webhookEvent is the minimal shape we need from a provider payload.
// The full raw body is archived in billing_snapshots regardless.
type webhookEvent struct {
	ID    string `json:"id" binding:"required"`
	Type  string `json:"type" binding:"required"`
	OrgID *int64 `json:"orgId"`
	Data  struct {
		TierKey   string `json:"tierKey"`
		ExpiresAt string `json:"expiresAt"` // RFC 3339
		Reference string `json:"reference"`
	} `json:"data"`
}

// BillingWebhook is the handler for POST /v1/billing/webhook/:provider
// Every event is archived as a snapshot first; duplicates (same provider +
// event id) are acknowledged with 200 so providers stop retrying.
func (h *Handlers) BillingWebhook(c *gin.Context) {
	provider := c.Param("provider")
	if provider != "stripe" && provider != "whop" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown billing provider"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	// 1. --- Signature check (skipped when no secret is configured) ---
	if secret := h.Cfg.Billing.WebhookSecret; secret != "" {
		if !verifyWebhookSignature(body, c.GetHeader("X-Webhook-Signature"), secret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
			return
		}
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.ID == "" || event.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed webhook payload"})
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	// 2. --- Archive the snapshot; the unique key is our dedup ---
	_, err = tx.Exec(`
		INSERT INTO billing_snapshots (org_id, provider, event_id, event_type, payload, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.OrgID, provider, event.ID, event.Type, string(body), time.Now())
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			// Already processed; tell the provider to stand down.
			c.JSON(http.StatusOK, gin.H{"message": "Event already processed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive event"})
		return
	}

	// 3. --- Apply the state change ---
	if event.OrgID != nil {
		if err := h.applyBillingEvent(tx, provider, *event.OrgID, event); err != nil {
			h.Log.Error().Err(err).Str("provider", provider).Str("event", event.ID).Msg("failed to apply billing event")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply billing event"})
			return
		}
	}

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit billing event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event processed"})
}

// applyBillingEvent maps provider event types onto subscription rows.
func (h *Handlers) applyBillingEvent(tx *sql.Tx, provider string, orgID int64, event webhookEvent) error {
	now := time.Now()

	switch event.Type {
	case "subscription.activated", "subscription.renewed":
		expiresAt := now.AddDate(0, 1, 0)
		if event.Data.ExpiresAt != "" {
			if t, err := time.Parse(time.RFC3339, event.Data.ExpiresAt); err == nil {
				expiresAt = t
			}
		}

		tierKey := event.Data.TierKey
		if tierKey == "" {
			tierKey = "solo"
		}
		var tierID int64
		if err := tx.QueryRow("SELECT id FROM subscription_tiers WHERE tier_key = ?", tierKey).Scan(&tierID); err != nil {
			return err
		}

		// Upsert: one live subscription row per org.
		result, err := tx.Exec(`
			UPDATE org_subscriptions
			SET tier_id = ?, status = 'active', provider = ?, provider_ref = ?, expires_at = ?, updated_at = ?
			WHERE org_id = ?`, tierID, provider, nullIfEmpty(event.Data.Reference), expiresAt, now, orgID)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			_, err = tx.Exec(`
				INSERT INTO org_subscriptions (org_id, tier_id, status, provider, provider_ref, expires_at, created_at, updated_at)
				VALUES (?, ?, 'active', ?, ?, ?, ?, ?)`,
				orgID, tierID, provider, nullIfEmpty(event.Data.Reference), expiresAt, now, now)
			if err != nil {
				return err
			}
		}
		return nil

	case "subscription.payment_failed":
		_, err := tx.Exec(`
			UPDATE org_subscriptions SET status = 'past_due', updated_at = ? WHERE org_id = ?`, now, orgID)
		return err

	case "subscription.cancelled":
		_, err := tx.Exec(`
			UPDATE org_subscriptions SET status = 'expired', updated_at = ? WHERE org_id = ?`, now, orgID)
		return err

	default:
		// Archived but not actionable. Fine.
		return nil
	}
}

// verifyWebhookSignature checks an HMAC-SHA256 hex signature over the raw body.
func verifyWebhookSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(signature, "sha256=")))
}

type AssignSubscriptionInput struct {
	OrgID     int64  `json:"orgId" binding:"required"`
	TierKey   string `json:"tierKey" binding:"required"`
	Status    string `json:"status" binding:"required"`
	ExpiresAt string `json:"expiresAt" binding:"required"` // RFC 3339
}

// AssignSubscription is the handler for POST /v1/admin/subscriptions
// Platform admins set subscriptions by hand - comped accounts, support
// fixes, partner deals.
func (h *Handlers) AssignSubscription(c *gin.Context) {
	var input AssignSubscriptionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch input.Status {
	case "trialing", "active", "past_due", "expired":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription status"})
		return
	}

	expiresAt, err := time.Parse(time.RFC3339, input.ExpiresAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expiresAt must be RFC 3339"})
		return
	}

	var tierID int64
	err = h.DB.QueryRow("SELECT id FROM subscription_tiers WHERE tier_key = ?", input.TierKey).Scan(&tierID)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown tier"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up tier"})
		return
	}

	now := time.Now()
	result, err := h.DB.Exec(`
		UPDATE org_subscriptions
		SET tier_id = ?, status = ?, provider = 'manual', provider_ref = NULL, expires_at = ?, updated_at = ?
		WHERE org_id = ?`, tierID, input.Status, expiresAt, now, input.OrgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign subscription"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		_, err = h.DB.Exec(`
			INSERT INTO org_subscriptions (org_id, tier_id, status, provider, provider_ref, expires_at, created_at, updated_at)
			VALUES (?, ?, ?, 'manual', NULL, ?, ?, ?)`,
			input.OrgID, tierID, input.Status, expiresAt, now, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscription"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription assigned"})
}
