package qualification

import "time"

// Qualification is a doctor-owned child row. Its lifetime is bound to the
// owning doctor aggregate.
type Qualification struct {
	ID          string
	DoctorID    string
	Degree      string
	Institution string
	Year        int
	CreatedAt   time.Time
}

// Spec contains the caller-supplied fields for a new qualification.
type Spec struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Year        int    `json:"year"`
}
