package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"careflow/address"
	"careflow/contact"
	"careflow/db"
	"careflow/doctor"
	"careflow/identity"
	"careflow/outbox"
	"careflow/qualification"
	"careflow/specialization"
)

// DoctorRequest is the transient provisioning input for a doctor. It is
// consumed once by the saga and never persisted as-is.
type DoctorRequest struct {
	LoginID           string               `json:"login_id"`
	Secret            string               `json:"secret"`
	FirstName         string               `json:"first_name"`
	LastName          string               `json:"last_name"`
	LicenseNumber     string               `json:"license_number"`
	Address           address.Spec         `json:"address"`
	Contact           contact.Spec         `json:"contact"`
	Qualifications    []qualification.Spec `json:"qualifications"`
	SpecializationIDs []string             `json:"specialization_ids"`
}

func (r DoctorRequest) validate() error {
	switch {
	case r.LoginID == "":
		return &ValidationError{Msg: "login_id is required"}
	case r.Secret == "":
		return &ValidationError{Msg: "secret is required"}
	case r.FirstName == "" || r.LastName == "":
		return &ValidationError{Msg: "first_name and last_name are required"}
	}
	return nil
}

// ProvisionDoctor creates the doctor's credential in the identity store and
// its full aggregate (profile, address, contact, qualifications,
// specialization links) in the domain store as one logical operation. The
// aggregate becomes visible atomically on the final commit; failures after
// credential creation compensate by deleting the credential and rolling the
// unit of work back.
func (c *Coordinator) ProvisionDoctor(ctx context.Context, req DoctorRequest) (dto DoctorDTO, err error) {
	defer func() { c.observeProvision(KindDoctor, err) }()

	if err = req.validate(); err != nil {
		return DoctorDTO{}, err
	}

	var (
		cred      identity.Credential
		specNames map[string]string
		u         *db.UnitOfWork
		addr      address.Address
		cont      contact.Contact
		rec       doctor.Record
		quals     []qualification.Qualification
	)

	steps := []step{
		{
			name: "reject duplicate login",
			run: func(ctx context.Context) error {
				return c.checkLoginFree(ctx, req.LoginID)
			},
		},
		{
			name: "create credential",
			run: func(ctx context.Context) error {
				created, err := c.credentials.CreateCredential(ctx, req.LoginID, req.Secret)
				if err != nil {
					if errors.Is(err, identity.ErrDuplicateLogin) {
						return &ConflictError{LoginID: req.LoginID}
					}
					return err
				}
				cred = created
				return nil
			},
			compensate: func(ctx context.Context) error {
				return c.credentials.DeleteCredential(ctx, cred.ID)
			},
		},
		{
			name: "assign role",
			run: func(ctx context.Context) error {
				return c.credentials.AssignRole(ctx, cred.ID, roleFor(KindDoctor))
			},
		},
		{
			name: "validate specialization references",
			run: func(ctx context.Context) error {
				names, err := c.catalog.ValidateReferences(ctx, req.SpecializationIDs)
				if err != nil {
					var unknown *specialization.UnknownReferenceError
					if errors.As(err, &unknown) {
						return &ValidationError{Msg: "unknown specialization ids", UnknownIDs: unknown.IDs}
					}
					return err
				}
				specNames = names
				return nil
			},
		},
		{
			name: "open unit of work",
			run: func(ctx context.Context) error {
				unit, err := db.BeginUnit(ctx, c.pool)
				if err != nil {
					return err
				}
				u = unit
				return nil
			},
			compensate: func(ctx context.Context) error {
				return u.Rollback(ctx)
			},
		},
		{
			name: "create address",
			run: func(ctx context.Context) error {
				created, err := c.addresses.Create(ctx, u, req.Address)
				if err != nil {
					return err
				}
				addr = created
				return nil
			},
		},
		{
			name: "create contact",
			run: func(ctx context.Context) error {
				created, err := c.contacts.Create(ctx, u, req.Contact)
				if err != nil {
					return err
				}
				cont = created
				return nil
			},
		},
		{
			name: "create aggregate",
			run: func(ctx context.Context) error {
				created, err := c.doctors.Create(ctx, u, doctor.Record{
					ID:                c.idGenerator(),
					CredentialID:      cred.ID,
					FirstName:         req.FirstName,
					LastName:          req.LastName,
					LicenseNumber:     req.LicenseNumber,
					AddressID:         addr.ID,
					ContactID:         cont.ID,
					SpecializationIDs: req.SpecializationIDs,
				})
				if err != nil {
					return err
				}
				rec = created
				if err := c.doctors.ReplaceSpecializationLinks(ctx, u, rec.ID, req.SpecializationIDs); err != nil {
					return err
				}
				qs, err := c.qualifications.CreateForDoctor(ctx, u, rec.ID, req.Qualifications)
				if err != nil {
					return err
				}
				quals = qs
				return c.outbox.Enqueue(ctx, u, outbox.TopicEntityProvisioned, map[string]any{
					"kind":          string(KindDoctor),
					"id":            rec.ID,
					"credential_id": cred.ID,
				})
			},
		},
		{
			name: "commit unit of work",
			run: func(ctx context.Context) error {
				rows, err := u.Commit(ctx)
				if err != nil {
					return err
				}
				c.logger.InfoContext(ctx, "doctor provisioned",
					slog.String("doctor_id", rec.ID),
					slog.String("credential_id", cred.ID),
					slog.Int64("rows", rows),
				)
				return nil
			},
		},
	}

	if err = c.execute(ctx, KindDoctor, steps); err != nil {
		return DoctorDTO{}, err
	}

	return newDoctorDTO(rec, req.LoginID, addr, cont, quals, specNames), nil
}

// GetDoctor returns the composed doctor aggregate.
func (c *Coordinator) GetDoctor(ctx context.Context, id string) (DoctorDTO, error) {
	rec, err := c.doctors.GetByID(ctx, id)
	if err != nil {
		return DoctorDTO{}, err
	}
	addr, cont, loginID, err := c.loadOwned(ctx, rec.AddressID, rec.ContactID, rec.CredentialID)
	if err != nil {
		return DoctorDTO{}, err
	}
	quals, err := c.qualifications.ListByDoctor(ctx, rec.ID)
	if err != nil {
		return DoctorDTO{}, err
	}
	specNames, err := c.catalog.ValidateReferences(ctx, rec.SpecializationIDs)
	if err != nil {
		return DoctorDTO{}, err
	}
	return newDoctorDTO(rec, loginID, addr, cont, quals, specNames), nil
}

// DoctorUpdate carries the whole replacement profile for an existing doctor.
type DoctorUpdate struct {
	ID                string   `json:"id"`
	FirstName         string   `json:"first_name"`
	LastName          string   `json:"last_name"`
	LicenseNumber     string   `json:"license_number"`
	SpecializationIDs []string `json:"specialization_ids"`
}

// UpdateDoctor replaces the doctor's profile row and specialization links in
// one unit of work. The owned address/contact references are preserved.
func (c *Coordinator) UpdateDoctor(ctx context.Context, upd DoctorUpdate) (DoctorDTO, error) {
	specNames, err := c.catalog.ValidateReferences(ctx, upd.SpecializationIDs)
	if err != nil {
		var unknown *specialization.UnknownReferenceError
		if errors.As(err, &unknown) {
			return DoctorDTO{}, &ValidationError{Msg: "unknown specialization ids", UnknownIDs: unknown.IDs}
		}
		return DoctorDTO{}, err
	}

	current, err := c.doctors.GetByID(ctx, upd.ID)
	if err != nil {
		return DoctorDTO{}, err
	}

	u, err := db.BeginUnit(ctx, c.pool)
	if err != nil {
		return DoctorDTO{}, err
	}
	defer u.Rollback(ctx)

	current.FirstName = upd.FirstName
	current.LastName = upd.LastName
	current.LicenseNumber = upd.LicenseNumber
	current.SpecializationIDs = upd.SpecializationIDs

	updated, err := c.doctors.Update(ctx, u, current)
	if err != nil {
		return DoctorDTO{}, err
	}
	if err := c.doctors.ReplaceSpecializationLinks(ctx, u, updated.ID, upd.SpecializationIDs); err != nil {
		return DoctorDTO{}, err
	}
	if _, err := u.Commit(ctx); err != nil {
		return DoctorDTO{}, err
	}

	addr, cont, loginID, err := c.loadOwned(ctx, updated.AddressID, updated.ContactID, updated.CredentialID)
	if err != nil {
		return DoctorDTO{}, err
	}
	quals, err := c.qualifications.ListByDoctor(ctx, updated.ID)
	if err != nil {
		return DoctorDTO{}, err
	}
	return newDoctorDTO(updated, loginID, addr, cont, quals, specNames), nil
}

// DeprovisionDoctor removes the doctor aggregate and its owned records from
// the domain store and deletes the credential from the identity store. The
// credential delete is ordered before the domain commit so its failure rolls
// the whole run back; a commit failure after the credential is gone is
// surfaced as a PartialDeprovisioningFailure.
func (c *Coordinator) DeprovisionDoctor(ctx context.Context, id string) (conf Confirmation, err error) {
	found := true
	defer func() { c.observeDeprovision(KindDoctor, err, found) }()

	u, err := db.BeginUnit(ctx, c.pool)
	if err != nil {
		return Confirmation{}, fmt.Errorf("provision: begin deprovision: %w", err)
	}
	defer u.Rollback(ctx)

	if err = c.qualifications.DeleteByDoctor(ctx, u, id); err != nil {
		return Confirmation{}, err
	}
	// Prescriptions outlive the prescriber: clear the reference instead of
	// deleting patient history.
	if err = c.medications.DetachDoctor(ctx, u, id); err != nil {
		return Confirmation{}, err
	}

	// Delete returns the removed row: the owned address/contact/credential
	// ids are captured from it because the row itself is already gone.
	rec, err := c.doctors.Delete(ctx, u, id)
	if err != nil {
		if errors.Is(err, doctor.ErrNotFound) {
			found = false
			err = nil
			return Confirmation{Deleted: false, Message: fmt.Sprintf("doctor %s not found", id)}, nil
		}
		return Confirmation{}, err
	}

	if err = c.deleteOwned(ctx, u, rec.AddressID, rec.ContactID); err != nil {
		return Confirmation{}, err
	}
	if err = c.outbox.Enqueue(ctx, u, outbox.TopicEntityDeprovisioned, map[string]any{
		"kind":          string(KindDoctor),
		"id":            rec.ID,
		"credential_id": rec.CredentialID,
	}); err != nil {
		return Confirmation{}, err
	}

	if err = c.deleteCredentialBeforeCommit(ctx, rec.CredentialID); err != nil {
		return Confirmation{}, err
	}
	if _, err = u.Commit(ctx); err != nil {
		err = c.partialDeprovision(ctx, KindDoctor, id, err)
		return Confirmation{}, err
	}

	c.logger.InfoContext(ctx, "doctor deprovisioned", slog.String("doctor_id", id))
	return Confirmation{Deleted: true, Message: fmt.Sprintf("doctor %s and its owned records were removed", id)}, nil
}
