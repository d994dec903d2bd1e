package hospital

import "time"

// Record mirrors the hospitals table. CredentialID is a weak reference into
// the identity store.
type Record struct {
	ID                 string
	CredentialID       string
	Name               string
	RegistrationNumber string
	AddressID          string
	ContactID          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
