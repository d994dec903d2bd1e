package address

import "time"

// Address is an independently stored row logically owned 1:1 by a single
// aggregate. The domain store does not cascade it; teardown is the owning
// orchestration's responsibility.
type Address struct {
	ID         string
	Line1      string
	Line2      *string
	City       string
	Province   string
	PostalCode string
	Country    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Spec contains the caller-supplied fields for a new address.
type Spec struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}
