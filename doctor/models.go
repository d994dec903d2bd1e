package doctor

import "time"

// Record mirrors the doctors table plus its eagerly loaded specialization
// links. CredentialID is a weak reference into the identity store: the
// domain store cannot validate that it exists.
type Record struct {
	ID                string
	CredentialID      string
	FirstName         string
	LastName          string
	LicenseNumber     string
	AddressID         string
	ContactID         string
	SpecializationIDs []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FullName returns the doctor's display name.
func (r Record) FullName() string {
	return r.FirstName + " " + r.LastName
}
