package models

import "time"

// Setting is the model for the 'settings' table.
// OrgID NULL means a global (platform-wide) setting, e.g. maintenance_mode.
type Setting struct {
	ID           int64     `json:"id" db:"id"`
	OrgID        *int64    `json:"orgId,omitempty" db:"org_id"`
	SettingKey   string    `json:"settingKey" db:"setting_key"`
	SettingValue string    `json:"settingValue" db:"setting_value"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
