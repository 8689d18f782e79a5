package handlers

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/batchtrack/batchtrack/internal/auth"
	"github.com/batchtrack/batchtrack/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
)

// --- Organization Registration ---

// We define a struct to hold the *input* from the user.
// This is separate from our main models because we don't want
// to accept an 'id' or 'role' from the outside.
type RegisterOrgInput struct {
	OrgName  string `json:"orgName" binding:"required"`
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// RegisterOrganization is the handler for POST /v1/register.
// It creates the organization, its owner user and a trial subscription
// on the solo tier, all in one transaction.
func (h *Handlers) RegisterOrganization(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input RegisterOrgInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Hash the Password ---
	var password models.Password
	if err := password.Set(input.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	// 3. --- Begin Transaction ---
	tx, err := h.DB.Begin()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start transaction"})
		return
	}
	defer tx.Rollback()

	now := time.Now()

	// 4. --- Create the Organization ---
	orgSlug := slug.Make(input.OrgName)
	var exists int
	err = tx.QueryRow("SELECT 1 FROM organizations WHERE slug = ?", orgSlug).Scan(&exists)
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "An organization with that name already exists"})
		return
	} else if err != sql.ErrNoRows {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check organization name"})
		return
	}

	result, err := tx.Exec(`
		INSERT INTO organizations (name, slug, status, contact_email, created_at, updated_at)
		VALUES (?, ?, 'active', ?, ?, ?)`,
		input.OrgName, orgSlug, input.Email, now, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create organization"})
		return
	}
	orgID, err := result.LastInsertId()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get new organization ID"})
		return
	}

	// 5. --- Create the Owner User (pending email verification) ---
	code := newVerificationCode()
	expiry := now.Add(24 * time.Hour)

	result, err = tx.Exec(`
		INSERT INTO users
		(org_id, role, status, email, password_hash, full_name, verification_code, verification_expiry, version, created_at, updated_at)
		VALUES (?, 'owner', 'pending', ?, ?, ?, ?, ?, 1, ?, ?)`,
		orgID, input.Email, password.Hash, input.FullName, code, expiry, now, now)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "That email address is already registered"})
		return
	}
	userID, _ := result.LastInsertId()

	// 6. --- Start the Trial Subscription (solo tier) ---
	trialEnd := now.AddDate(0, 0, h.Cfg.Billing.TrialDays)
	_, err = tx.Exec(`
		INSERT INTO org_subscriptions (org_id, tier_id, status, provider, expires_at, created_at, updated_at)
		SELECT ?, id, 'trialing', 'manual', ?, ?, ?
		FROM subscription_tiers WHERE tier_key = 'solo'`,
		orgID, trialEnd, now, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start trial subscription"})
		return
	}

	// 7. --- Commit ---
	if err := tx.Commit(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to commit registration"})
		return
	}

	// In production the code goes out by email; we log it for now because
	// the mailer isn't wired up yet.
	h.Log.Info().Int64("user", userID).Str("code", code).Msg("verification code issued")

	// 8. --- Send Success Response ---
	c.JSON(http.StatusCreated, gin.H{
		"message": "Organization registered. Check your email for the verification code.",
		"orgId":   orgID,
		"userId":  userID,
	})
}

// --- Email Verification ---

type VerifyEmailInput struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// VerifyEmail is the handler for POST /v1/auth/verify-email.
func (h *Handlers) VerifyEmail(c *gin.Context) {
	var input VerifyEmailInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 1. --- Look up the pending user ---
	var userID int64
	var code sql.NullString
	var expiry sql.NullTime
	err := h.DB.QueryRow(`
		SELECT id, verification_code, verification_expiry
		FROM users WHERE email = ? AND status = 'pending'`,
		input.Email).Scan(&userID, &code, &expiry)
	if err != nil {
		// Same answer for "no such user" and "already verified" so the
		// endpoint can't be used to probe accounts.
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid verification code"})
		return
	}

	// 2. --- Check the code ---
	if !code.Valid || code.String != input.Code {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid verification code"})
		return
	}
	if !expiry.Valid || time.Now().After(expiry.Time) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification code has expired. Request a new one."})
		return
	}

	// 3. --- Activate ---
	_, err = h.DB.Exec(`
		UPDATE users
		SET status = 'active', verification_code = NULL, verification_expiry = NULL, updated_at = ?
		WHERE id = ?`, time.Now(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to activate account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Email verified. You can now log in."})
}

// ResendVerificationCode is the handler for POST /v1/auth/resend-code.
func (h *Handlers) ResendVerificationCode(c *gin.Context) {
	var input struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := newVerificationCode()
	result, err := h.DB.Exec(`
		UPDATE users
		SET verification_code = ?, verification_expiry = ?, updated_at = ?
		WHERE email = ? AND status = 'pending'`,
		code, time.Now().Add(24*time.Hour), time.Now(), input.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh verification code"})
		return
	}

	if n, _ := result.RowsAffected(); n > 0 {
		h.Log.Info().Str("email", input.Email).Str("code", code).Msg("verification code reissued")
	}

	// Always 200 so the endpoint can't be used to probe accounts.
	c.JSON(http.StatusOK, gin.H{"message": "If that account is pending verification, a new code has been sent."})
}

// --- Login ---

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login is the handler for POST /v1/login.
func (h *Handlers) Login(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 2. --- Fetch the User ---
	var user models.User
	err := h.DB.QueryRow(`
		SELECT id, org_id, role, status, email, password_hash, full_name
		FROM users WHERE email = ?`,
		input.Email).Scan(&user.ID, &user.OrgID, &user.Role, &user.Status, &user.Email, &user.PasswordHash, &user.FullName)
	if err != nil {
		// Same message for unknown email and wrong password.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	// 3. --- Check the Password ---
	password := models.Password{Hash: user.PasswordHash}
	matches, err := password.Matches(input.Password)
	if err != nil || !matches {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	// 4. --- Check Account Status ---
	switch user.Status {
	case "pending":
		c.JSON(http.StatusForbidden, gin.H{"error": "Please verify your email address first"})
		return
	case "deactivated":
		c.JSON(http.StatusForbidden, gin.H{"error": "This account has been deactivated"})
		return
	}

	// 5. --- Issue the Token ---
	token, err := auth.GenerateToken(user.ID, user.OrgID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":       user.ID,
			"orgId":    user.OrgID,
			"role":     user.Role,
			"email":    user.Email,
			"fullName": user.FullName,
		},
	})
}

// newVerificationCode returns a 6-digit numeric code from crypto/rand.
func newVerificationCode() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	n := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return fmt.Sprintf("%06d", n%1000000)
}
