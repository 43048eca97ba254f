package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Actor identifies the caller of a mutating operation. Identity and role are
// resolved upstream; the engine only uses them for audit attribution.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}
