package medication

import "time"

// Status represents the lifecycle of a prescription.
type Status string

const (
	StatusActive       Status = "active"
	StatusDiscontinued Status = "discontinued"
)

// Record mirrors the medications table: one prescription for a patient.
// DoctorID is nullable; deprovisioning the prescriber keeps the patient's
// medication history intact.
type Record struct {
	ID             string
	PatientID      string
	DoctorID       *string
	Name           string
	Dosage         string
	Instructions   *string
	Status         Status
	PrescribedAt   time.Time
	DiscontinuedAt *time.Time
}

// Spec is the creation input for a prescription.
type Spec struct {
	PatientID    string `json:"patient_id"`
	DoctorID     string `json:"doctor_id"`
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Instructions string `json:"instructions,omitempty"`
}
