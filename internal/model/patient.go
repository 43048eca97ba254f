package model

import "time"

// Patient carries only the slice of the patient record the scheduler needs.
// Full patient management lives in a separate service.
type Patient struct {
	Base
	Reference string     `db:"reference" json:"reference"`
	FullName  string     `db:"full_name" json:"full_name"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}
