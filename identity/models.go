package identity

import "time"

type Role string

const (
	RoleDoctor   Role = "doctor"
	RolePatient  Role = "patient"
	RoleHospital Role = "hospital"
	RoleAdmin    Role = "admin"
)

// Credential is the identity-store record authenticating a login identifier.
// Domain aggregates reference it by id only; the identity store and the
// domain store share no referential integrity, so nothing prevents a
// credential id on an aggregate from dangling except the provisioning
// orchestration itself.
type Credential struct {
	ID         string
	LoginID    string
	SecretHash string
	Role       Role
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LoginRequest contains login credentials supplied by callers.
type LoginRequest struct {
	LoginID string `json:"login_id"`
	Secret  string `json:"secret"`
}
