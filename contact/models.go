package contact

import "time"

// Contact is an independently stored row logically owned 1:1 by a single
// aggregate. Like addresses, contacts are never cascaded by the store; the
// owning orchestration deletes them explicitly.
type Contact struct {
	ID        string
	Phone     string
	AltPhone  *string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Spec contains the caller-supplied fields for a new contact.
type Spec struct {
	Phone    string `json:"phone"`
	AltPhone string `json:"alt_phone,omitempty"`
	Email    string `json:"email"`
}
