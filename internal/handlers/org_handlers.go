package handlers

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/batchtrack/batchtrack/internal/models"
	"github.com/gin-gonic/gin"
)

//
// --- Organization & Member Handlers ---
//

// GetMyOrganization is the handler for GET /v1/org/me
func (h *Handlers) GetMyOrganization(c *gin.Context) {
	_, orgID := orgScope(c)

	var org models.Organization
	err := h.DB.QueryRow(`
		SELECT id, name, slug, status, contact_email, country, timezone, created_at, updated_at
		FROM organizations WHERE id = ?`, orgID).Scan(
		&org.ID, &org.Name, &org.Slug, &org.Status,
		&org.ContactEmail, &org.Country, &org.Timezone,
		&org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch organization"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"organization": org})
}

type UpdateOrgInput struct {
	Name         *string `json:"name"`
	ContactEmail *string `json:"contactEmail" binding:"omitempty,email"`
	Country      *string `json:"country"`
	Timezone     *string `json:"timezone"`
}

// UpdateMyOrganization is the handler for PUT /v1/org/me (owner/admin only).
// Only the provided fields are updated.
func (h *Handlers) UpdateMyOrganization(c *gin.Context) {
	_, orgID := orgScope(c)

	var input UpdateOrgInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Build the SET clause from what was actually sent.
	setClauses := ""
	args := []interface{}{}
	appendSet := func(clause string, val interface{}) {
		if setClauses != "" {
			setClauses += ", "
		}
		setClauses += clause
		args = append(args, val)
	}
	if input.Name != nil {
		appendSet("name = ?", *input.Name)
	}
	if input.ContactEmail != nil {
		appendSet("contact_email = ?", *input.ContactEmail)
	}
	if input.Country != nil {
		appendSet("country = ?", *input.Country)
	}
	if input.Timezone != nil {
		appendSet("timezone = ?", *input.Timezone)
	}
	if setClauses == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		return
	}
	appendSet("updated_at = ?", time.Now())
	args = append(args, orgID)

	_, err := h.DB.Exec("UPDATE organizations SET "+setClauses+" WHERE id = ?", args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update organization"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Organization updated"})
}

// --- Members ---

// ListMembers is the handler for GET /v1/org/members
func (h *Handlers) ListMembers(c *gin.Context) {
	_, orgID := orgScope(c)

	rows, err := h.DB.Query(`
		SELECT id, org_id, role, status, email, full_name, created_at, updated_at
		FROM users WHERE org_id = ?
		ORDER BY created_at ASC`, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}
	defer rows.Close()

	var members []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.OrgID, &u.Role, &u.Status, &u.Email, &u.FullName, &u.CreatedAt, &u.UpdatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan member row"})
			return
		}
		members = append(members, u)
	}

	if members == nil {
		members = []models.User{}
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type InviteMemberInput struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"required,oneof=admin member"`
}

// InviteMember is the handler for POST /v1/org/members (owner/admin only).
// Seat count is checked against the org's tier limit inside the same
// transaction that inserts the user.
func (h *Handlers) InviteMember(c *gin.Context) {
	_, orgID := orgScope(c)

	var input InviteMemberInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var password models.Password
	if err := password.Set(input.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	// 1. --- Entitlement Check: seats ---
	allowed, limit, err := h.checkSeatLimit(tx, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check seat limit"})
		return
	}
	if !allowed {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": "Your subscription tier allows at most " + strconv.Itoa(limit) + " users. Upgrade to add more.",
		})
		return
	}

	// 2. --- Create the Member (active immediately; they were invited) ---
	now := time.Now()
	result, err := tx.Exec(`
		INSERT INTO users
		(org_id, role, status, email, password_hash, full_name, version, created_at, updated_at)
		VALUES (?, ?, 'active', ?, ?, ?, 1, ?, ?)`,
		orgID, input.Role, input.Email, password.Hash, input.FullName, now, now)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "That email address is already registered"})
		return
	}
	memberID, _ := result.LastInsertId()

	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit invitation"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Member added", "memberId": memberID})
}

// DeactivateMember is the handler for DELETE /v1/org/members/:id (owner only).
// The owner cannot deactivate themselves - an org always keeps its owner.
func (h *Handlers) DeactivateMember(c *gin.Context) {
	userID, orgID := orgScope(c)
	memberID := c.Param("id")

	result, err := h.DB.Exec(`
		UPDATE users SET status = 'deactivated', updated_at = ?
		WHERE id = ? AND org_id = ? AND id != ? AND role != 'owner'`,
		time.Now(), memberID, orgID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate member"})
		return
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check affected rows"})
		return
	}
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found, or cannot be deactivated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member deactivated"})
}

// checkSeatLimit counts active users against the tier's max_users.
// Returns (allowed, limit, error).
func (h *Handlers) checkSeatLimit(tx *sql.Tx, orgID int64) (bool, int, error) {
	var maxUsers, current int
	err := tx.QueryRow(`
		SELECT t.max_users
		FROM org_subscriptions s
		JOIN subscription_tiers t ON s.tier_id = t.id
		WHERE s.org_id = ? AND s.status IN ('trialing', 'active')
		ORDER BY s.created_at DESC LIMIT 1`, orgID).Scan(&maxUsers)
	if err != nil {
		if err == sql.ErrNoRows {
			// No live subscription: treat as the smallest tier rather
			// than locking the org out of its own data.
			maxUsers = 1
		} else {
			return false, 0, err
		}
	}

	err = tx.QueryRow("SELECT COUNT(*) FROM users WHERE org_id = ? AND status != 'deactivated'", orgID).Scan(&current)
	if err != nil {
		return false, 0, err
	}

	return current < maxUsers, maxUsers, nil
}
