package models

import "time"

// Organization is the tenancy unit. Every domain row carries an org_id
// foreign key back to this table.
type Organization struct {
	ID     int64  `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Slug   string `json:"slug" db:"slug"`
	Status string `json:"status" db:"status"` // 'active', 'suspended', 'closed'

	// --- Profile Fields (Pointers = Clean JSON) ---
	ContactEmail *string `json:"contactEmail,omitempty" db:"contact_email"`
	Country      *string `json:"country,omitempty" db:"country"`
	Timezone     *string `json:"timezone,omitempty" db:"timezone"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
