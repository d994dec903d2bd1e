package labtest

import "time"

// Record mirrors the lab_tests table: a test offered by a hospital.
type Record struct {
	ID         string
	HospitalID string
	Name       string
	CostCents  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Spec is the creation input for a lab test offering.
type Spec struct {
	HospitalID string `json:"hospital_id"`
	Name       string `json:"name"`
	CostCents  int64  `json:"cost_cents"`
}
