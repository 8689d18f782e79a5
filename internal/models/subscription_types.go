package models

import "time"

// OrgSubscription defines the model for the 'org_subscriptions' table
type OrgSubscription struct {
	ID          int64     `json:"id" db:"id"`
	OrgID       int64     `json:"orgId" db:"org_id"`
	TierID      int64     `json:"tierId" db:"tier_id"`
	Status      string    `json:"status" db:"status"`     // 'trialing', 'active', 'past_due', 'expired'
	Provider    string    `json:"provider" db:"provider"` // 'stripe', 'whop', 'manual'
	ProviderRef *string   `json:"providerRef,omitempty" db:"provider_ref"`
	ExpiresAt   time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`

	// These fields are not in the DB, but will be
	// populated by our handlers for the admin view.
	TierName string `json:"tierName,omitempty" db:"-"`
	OrgName  string `json:"orgName,omitempty" db:"-"`
}

// BillingSnapshot is an append-only copy of a raw provider webhook event.
// We keep these so subscription state can be rebuilt if the provider is down.
type BillingSnapshot struct {
	ID         int64     `json:"id" db:"id"`
	OrgID      *int64    `json:"orgId,omitempty" db:"org_id"`
	Provider   string    `json:"provider" db:"provider"`
	EventID    string    `json:"eventId" db:"event_id"`
	EventType  string    `json:"eventType" db:"event_type"`
	Payload    string    `json:"payload" db:"payload"`
	CapturedAt time.Time `json:"capturedAt" db:"captured_at"`
}
