package model

import "time"

type ProviderRole string

const (
	ProviderRoleDentist      ProviderRole = "dentist"
	ProviderRoleOrthodontist ProviderRole = "orthodontist"
	ProviderRoleHygienist    ProviderRole = "hygienist"
)

// Provider is a clinician whose time is booked against. NextAvailableAt is a
// derived cache: the start of the nearest future scheduled appointment. It is
// written only by the availability refresher, never by booking logic directly.
type Provider struct {
	Base
	FullName               string       `db:"full_name" json:"full_name"`
	Initials               string       `db:"initials" json:"initials"`
	Specialty              *string      `db:"specialty" json:"specialty"`
	Role                   ProviderRole `db:"role" json:"role"`
	Color                  string       `db:"color" json:"color"`
	IsActive               bool         `db:"is_active" json:"is_active"`
	DefaultDurationMinutes int          `db:"default_duration_minutes" json:"default_duration_minutes"`
	NextAvailableAt        *time.Time   `db:"next_available_at" json:"next_available_at"`
}
