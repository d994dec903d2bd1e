package provision

import (
	"time"

	"careflow/address"
	"careflow/contact"
	"careflow/doctor"
	"careflow/hospital"
	"careflow/patient"
	"careflow/qualification"
)

// AddressDTO is the composed view of an owned address.
type AddressDTO struct {
	ID         string `json:"id"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// ContactDTO is the composed view of an owned contact.
type ContactDTO struct {
	ID       string `json:"id"`
	Phone    string `json:"phone"`
	AltPhone string `json:"alt_phone,omitempty"`
	Email    string `json:"email"`
}

// QualificationDTO is the composed view of a doctor qualification.
type QualificationDTO struct {
	ID          string `json:"id"`
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Year        int    `json:"year"`
}

// SpecializationRef pairs a catalog id with its resolved display name.
type SpecializationRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DoctorDTO is the fully composed doctor aggregate returned to callers.
type DoctorDTO struct {
	ID              string              `json:"id"`
	CredentialID    string              `json:"credential_id"`
	LoginID         string              `json:"login_id"`
	FirstName       string              `json:"first_name"`
	LastName        string              `json:"last_name"`
	LicenseNumber   string              `json:"license_number"`
	Address         AddressDTO          `json:"address"`
	Contact         ContactDTO          `json:"contact"`
	Qualifications  []QualificationDTO  `json:"qualifications"`
	Specializations []SpecializationRef `json:"specializations"`
	CreatedAt       time.Time           `json:"created_at"`
}

// PatientDTO is the fully composed patient aggregate returned to callers.
type PatientDTO struct {
	ID           string     `json:"id"`
	CredentialID string     `json:"credential_id"`
	LoginID      string     `json:"login_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	BirthDate    time.Time  `json:"birth_date"`
	BloodGroup   string     `json:"blood_group"`
	Address      AddressDTO `json:"address"`
	Contact      ContactDTO `json:"contact"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HospitalDTO is the fully composed hospital aggregate returned to callers.
type HospitalDTO struct {
	ID                 string     `json:"id"`
	CredentialID       string     `json:"credential_id"`
	LoginID            string     `json:"login_id"`
	Name               string     `json:"name"`
	RegistrationNumber string     `json:"registration_number"`
	Address            AddressDTO `json:"address"`
	Contact            ContactDTO `json:"contact"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Confirmation reports the outcome of a deprovisioning run. A run that finds
// nothing to delete reports Deleted=false with a nil error: repeating a
// deprovision is an expected no-op, not a fault.
type Confirmation struct {
	Deleted bool   `json:"deleted"`
	Message string `json:"message"`
}

func newAddressDTO(a address.Address) AddressDTO {
	dto := AddressDTO{
		ID:         a.ID,
		Line1:      a.Line1,
		City:       a.City,
		Province:   a.Province,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
	if a.Line2 != nil {
		dto.Line2 = *a.Line2
	}
	return dto
}

func newContactDTO(c contact.Contact) ContactDTO {
	dto := ContactDTO{
		ID:    c.ID,
		Phone: c.Phone,
		Email: c.Email,
	}
	if c.AltPhone != nil {
		dto.AltPhone = *c.AltPhone
	}
	return dto
}

func newQualificationDTOs(quals []qualification.Qualification) []QualificationDTO {
	out := make([]QualificationDTO, 0, len(quals))
	for _, q := range quals {
		out = append(out, QualificationDTO{
			ID:          q.ID,
			Degree:      q.Degree,
			Institution: q.Institution,
			Year:        q.Year,
		})
	}
	return out
}

// newSpecializationRefs preserves the link order of ids while attaching the
// resolved names.
func newSpecializationRefs(ids []string, names map[string]string) []SpecializationRef {
	out := make([]SpecializationRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, SpecializationRef{ID: id, Name: names[id]})
	}
	return out
}

func newDoctorDTO(rec doctor.Record, loginID string, addr address.Address, cont contact.Contact, quals []qualification.Qualification, specNames map[string]string) DoctorDTO {
	return DoctorDTO{
		ID:              rec.ID,
		CredentialID:    rec.CredentialID,
		LoginID:         loginID,
		FirstName:       rec.FirstName,
		LastName:        rec.LastName,
		LicenseNumber:   rec.LicenseNumber,
		Address:         newAddressDTO(addr),
		Contact:         newContactDTO(cont),
		Qualifications:  newQualificationDTOs(quals),
		Specializations: newSpecializationRefs(rec.SpecializationIDs, specNames),
		CreatedAt:       rec.CreatedAt,
	}
}

func newPatientDTO(rec patient.Record, loginID string, addr address.Address, cont contact.Contact) PatientDTO {
	return PatientDTO{
		ID:           rec.ID,
		CredentialID: rec.CredentialID,
		LoginID:      loginID,
		FirstName:    rec.FirstName,
		LastName:     rec.LastName,
		BirthDate:    rec.BirthDate,
		BloodGroup:   rec.BloodGroup,
		Address:      newAddressDTO(addr),
		Contact:      newContactDTO(cont),
		CreatedAt:    rec.CreatedAt,
	}
}

func newHospitalDTO(rec hospital.Record, loginID string, addr address.Address, cont contact.Contact) HospitalDTO {
	return HospitalDTO{
		ID:                 rec.ID,
		CredentialID:       rec.CredentialID,
		LoginID:            loginID,
		Name:               rec.Name,
		RegistrationNumber: rec.RegistrationNumber,
		Address:            newAddressDTO(addr),
		Contact:            newContactDTO(cont),
		CreatedAt:          rec.CreatedAt,
	}
}
