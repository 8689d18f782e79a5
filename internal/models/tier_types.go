package models

import "time"

// SubscriptionTier defines the model for the 'subscription_tiers' table.
// Limits live here so entitlement checks never need a billing provider call.
type SubscriptionTier struct {
	ID              int64     `json:"id" db:"id"`
	TierKey         string    `json:"tierKey" db:"tier_key"` // 'solo', 'team', 'enterprise'
	Name            string    `json:"name" db:"name"`
	Description     string    `json:"description" db:"description"`
	MonthlyPrice    float64   `json:"monthlyPrice" db:"monthly_price"`
	MaxUsers        int       `json:"maxUsers" db:"max_users"`
	MaxRecipes      int       `json:"maxRecipes" db:"max_recipes"`
	MaxBatchesMonth int       `json:"maxBatchesMonth" db:"max_batches_month"`
	IsPublic        bool      `json:"isPublic" db:"is_public"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}
