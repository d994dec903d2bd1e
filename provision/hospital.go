package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"careflow/address"
	"careflow/contact"
	"careflow/db"
	"careflow/hospital"
	"careflow/identity"
	"careflow/outbox"
)

// HospitalRequest is the transient provisioning input for a hospital.
type HospitalRequest struct {
	LoginID            string       `json:"login_id"`
	Secret             string       `json:"secret"`
	Name               string       `json:"name"`
	RegistrationNumber string       `json:"registration_number"`
	Address            address.Spec `json:"address"`
	Contact            contact.Spec `json:"contact"`
}

func (r HospitalRequest) validate() error {
	switch {
	case r.LoginID == "":
		return &ValidationError{Msg: "login_id is required"}
	case r.Secret == "":
		return &ValidationError{Msg: "secret is required"}
	case r.Name == "":
		return &ValidationError{Msg: "name is required"}
	}
	return nil
}

// ProvisionHospital runs the hospital saga with the same step order as the
// other kinds.
func (c *Coordinator) ProvisionHospital(ctx context.Context, req HospitalRequest) (dto HospitalDTO, err error) {
	defer func() { c.observeProvision(KindHospital, err) }()

	if err = req.validate(); err != nil {
		return HospitalDTO{}, err
	}

	var (
		cred identity.Credential
		u    *db.UnitOfWork
		addr address.Address
		cont contact.Contact
		rec  hospital.Record
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
				return c.credentials.AssignRole(ctx, cred.ID, roleFor(KindHospital))
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
				created, err := c.hospitals.Create(ctx, u, hospital.Record{
					ID:                 c.idGenerator(),
					CredentialID:       cred.ID,
					Name:               req.Name,
					RegistrationNumber: req.RegistrationNumber,
					AddressID:          addr.ID,
					ContactID:          cont.ID,
				})
				if err != nil {
					return err
				}
				rec = created
				return c.outbox.Enqueue(ctx, u, outbox.TopicEntityProvisioned, map[string]any{
					"kind":          string(KindHospital),
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
				c.logger.InfoContext(ctx, "hospital provisioned",
					slog.String("hospital_id", rec.ID),
					slog.String("credential_id", cred.ID),
					slog.Int64("rows", rows),
				)
				return nil
			},
		},
	}

	if err = c.execute(ctx, KindHospital, steps); err != nil {
		return HospitalDTO{}, err
	}

	return newHospitalDTO(rec, req.LoginID, addr, cont), nil
}

// GetHospital returns the composed hospital aggregate.
func (c *Coordinator) GetHospital(ctx context.Context, id string) (HospitalDTO, error) {
	rec, err := c.hospitals.GetByID(ctx, id)
	if err != nil {
		return HospitalDTO{}, err
	}
	addr, cont, loginID, err := c.loadOwned(ctx, rec.AddressID, rec.ContactID, rec.CredentialID)
	if err != nil {
		return HospitalDTO{}, err
	}
	return newHospitalDTO(rec, loginID, addr, cont), nil
}

// HospitalUpdate carries the whole replacement profile for an existing
// hospital.
type HospitalUpdate struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	RegistrationNumber string `json:"registration_number"`
}

// UpdateHospital replaces the hospital's profile row in one unit of work.
func (c *Coordinator) UpdateHospital(ctx context.Context, upd HospitalUpdate) (HospitalDTO, error) {
	current, err := c.hospitals.GetByID(ctx, upd.ID)
	if err != nil {
		return HospitalDTO{}, err
	}

	u, err := db.BeginUnit(ctx, c.pool)
	if err != nil {
		return HospitalDTO{}, err
	}
	defer u.Rollback(ctx)

	current.Name = upd.Name
	current.RegistrationNumber = upd.RegistrationNumber

	updated, err := c.hospitals.Update(ctx, u, current)
	if err != nil {
		return HospitalDTO{}, err
	}
	if _, err := u.Commit(ctx); err != nil {
		return HospitalDTO{}, err
	}

	addr, cont, loginID, err := c.loadOwned(ctx, updated.AddressID, updated.ContactID, updated.CredentialID)
	if err != nil {
		return HospitalDTO{}, err
	}
	return newHospitalDTO(updated, loginID, addr, cont), nil
}

// DeprovisionHospital removes the hospital aggregate, its owned records and
// its credential.
func (c *Coordinator) DeprovisionHospital(ctx context.Context, id string) (conf Confirmation, err error) {
	found := true
	defer func() { c.observeDeprovision(KindHospital, err, found) }()

	u, err := db.BeginUnit(ctx, c.pool)
	if err != nil {
		return Confirmation{}, fmt.Errorf("provision: begin deprovision: %w", err)
	}
	defer u.Rollback(ctx)

	if err = c.labTests.DeleteByHospital(ctx, u, id); err != nil {
		return Confirmation{}, err
	}

	rec, err := c.hospitals.Delete(ctx, u, id)
	if err != nil {
		if errors.Is(err, hospital.ErrNotFound) {
			found = false
			err = nil
			return Confirmation{Deleted: false, Message: fmt.Sprintf("hospital %s not found", id)}, nil
		}
		return Confirmation{}, err
	}

	if err = c.deleteOwned(ctx, u, rec.AddressID, rec.ContactID); err != nil {
		return Confirmation{}, err
	}
	if err = c.outbox.Enqueue(ctx, u, outbox.TopicEntityDeprovisioned, map[string]any{
		"kind":          string(KindHospital),
		"id":            rec.ID,
		"credential_id": rec.CredentialID,
	}); err != nil {
		return Confirmation{}, err
	}

	if err = c.deleteCredentialBeforeCommit(ctx, rec.CredentialID); err != nil {
		return Confirmation{}, err
	}
	if _, err = u.Commit(ctx); err != nil {
		err = c.partialDeprovision(ctx, KindHospital, id, err)
		return Confirmation{}, err
	}

	c.logger.InfoContext(ctx, "hospital deprovisioned", slog.String("hospital_id", id))
	return Confirmation{Deleted: true, Message: fmt.Sprintf("hospital %s and its owned records were removed", id)}, nil
}
