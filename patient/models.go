package patient

import "time"

// Record mirrors the patients table. CredentialID is a weak reference into
// the identity store.
type Record struct {
	ID           string
	CredentialID string
	FirstName    string
	LastName     string
	BirthDate    time.Time
	BloodGroup   string
	AddressID    string
	ContactID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName returns the patient's display name.
func (r Record) FullName() string {
	return r.FirstName + " " + r.LastName
}
