package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"careflow/address"
	"careflow/contact"
	"careflow/db"
	"careflow/identity"
	"careflow/outbox"
	"careflow/patient"
)

// PatientRequest is the transient provisioning input for a patient.
type PatientRequest struct {
	LoginID    string       `json:"login_id"`
	Secret     string       `json:"secret"`
	FirstName  string       `json:"first_name"`
	LastName   string       `json:"last_name"`
	BirthDate  time.Time    `json:"birth_date"`
	BloodGroup string       `json:"blood_group"`
	Address    address.Spec `json:"address"`
	Contact    contact.Spec `json:"contact"`
}

func (r PatientRequest) validate() error {
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

// ProvisionPatient runs the patient saga: credential and role in the
// identity store, then profile, address and contact staged in one domain
// unit of work.
func (c *Coordinator) ProvisionPatient(ctx context.Context, req PatientRequest) (dto PatientDTO, err error) {
	defer func() { c.observeProvision(KindPatient, err) }()

	if err = req.validate(); err != nil {
		return PatientDTO{}, err
	}

	var (
		cred identity.Credential
		u    *db.UnitOfWork
		addr address.Address
		cont contact.Contact
		rec  patient.Record
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
				return c.credentials.AssignRole(ctx, cred.ID, roleFor(KindPatient))
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
				created, err := c.patients.Create(ctx, u, patient.Record{
					ID:           c.idGenerator(),
					CredentialID: cred.ID,
					FirstName:    req.FirstName,
					LastName:     req.LastName,
					BirthDate:    req.BirthDate,
					BloodGroup:   req.BloodGroup,
					AddressID:    addr.ID,
					ContactID:    cont.ID,
				})
				if err != nil {
					return err
				}
				rec = created
				return c.outbox.Enqueue(ctx, u, outbox.TopicEntityProvisioned, map[string]any{
					"kind":          string(KindPatient),
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
				c.logger.InfoContext(ctx, "patient provisioned",
					slog.String("patient_id", rec.ID),
					slog.String("credential_id", cred.ID),
					slog.Int64("rows", rows),
				)
				return nil
			},
		},
	}

	if err = c.execute(ctx, KindPatient, steps); err != nil {
		return PatientDTO{}, err
	}

	return newPatientDTO(rec, req.LoginID, addr, cont), nil
}

// GetPatient returns the composed patient aggregate.
func (c *Coordinator) GetPatient(ctx context.Context, id string) (PatientDTO, error) {
	rec, err := c.patients.GetByID(ctx, id)
	if err != nil {
		return PatientDTO{}, err
	}
	addr, cont, loginID, err := c.loadOwned(ctx, rec.AddressID, rec.ContactID, rec.CredentialID)
	if err != nil {
		return PatientDTO{}, err
	}
	return newPatientDTO(rec, loginID, addr, cont), nil
}

// PatientUpdate carries the whole replacement profile for an existing
// patient.
type PatientUpdate struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	BirthDate  time.Time `json:"birth_date"`
	BloodGroup string    `json:"blood_group"`
}

// UpdatePatient replaces the patient's profile row in one unit of work.
func (c *Coordinator) UpdatePatient(ctx context.Context, upd PatientUpdate) (PatientDTO, error) {
	current, err := c.patients.GetByID(ctx, upd.ID)
	if err != nil {
		return PatientDTO{}, err
	}

	u, err := db.BeginUnit(ctx, c.pool)
	if err != nil {
		return PatientDTO{}, err
	}
	defer u.Rollback(ctx)

	current.FirstName = upd.FirstName
	current.LastName = upd.LastName
	current.BirthDate = upd.BirthDate
	current.BloodGroup = upd.BloodGroup

	updated, err := c.patients.Update(ctx, u, current)
	if err != nil {
		return PatientDTO{}, err
	}
	if _, err := u.Commit(ctx); err != nil {
		return PatientDTO{}, err
	}

	addr, cont, loginID, err := c.loadOwned(ctx, updated.AddressID, updated.ContactID, updated.CredentialID)
	if err != nil {
		return PatientDTO{}, err
	}
	return newPatientDTO(updated, loginID, addr, cont), nil
}

// DeprovisionPatient removes the patient aggregate, its owned records and
// its credential, mirroring the doctor teardown order.
func (c *Coordinator) DeprovisionPatient(ctx context.Context, id string) (conf Confirmation, err error) {
	found := true
	defer func() { c.observeDeprovision(KindPatient, err, found) }()

	u, err := db.BeginUnit(ctx, c.pool)
	if err != nil {
		return Confirmation{}, fmt.Errorf("provision: begin deprovision: %w", err)
	}
	defer u.Rollback(ctx)

	if err = c.medications.DeleteByPatient(ctx, u, id); err != nil {
		return Confirmation{}, err
	}

	rec, err := c.patients.Delete(ctx, u, id)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			found = false
			err = nil
			return Confirmation{Deleted: false, Message: fmt.Sprintf("patient %s not found", id)}, nil
		}
		return Confirmation{}, err
	}

	if err = c.deleteOwned(ctx, u, rec.AddressID, rec.ContactID); err != nil {
		return Confirmation{}, err
	}
	if err = c.outbox.Enqueue(ctx, u, outbox.TopicEntityDeprovisioned, map[string]any{
		"kind":          string(KindPatient),
		"id":            rec.ID,
		"credential_id": rec.CredentialID,
	}); err != nil {
		return Confirmation{}, err
	}

	if err = c.deleteCredentialBeforeCommit(ctx, rec.CredentialID); err != nil {
		return Confirmation{}, err
	}
	if _, err = u.Commit(ctx); err != nil {
		err = c.partialDeprovision(ctx, KindPatient, id, err)
		return Confirmation{}, err
	}

	c.logger.InfoContext(ctx, "patient deprovisioned", slog.String("patient_id", id))
	return Confirmation{Deleted: true, Message: fmt.Sprintf("patient %s and its owned records were removed", id)}, nil
}
