package specialization

import "time"

// Specialization is a shared catalog entity. Aggregates link to it via join
// rows; the catalog row itself is owned by nobody and must never be deleted
// as a side effect of aggregate teardown.
type Specialization struct {
	ID          string
	Name        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateParams contains write parameters for a new catalog entry.
type CreateParams struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
