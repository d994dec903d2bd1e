package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"careflow/address"
	"careflow/contact"
	"careflow/db"
	"careflow/doctor"
	"careflow/hospital"
	"careflow/identity"
	"careflow/metrics"
	"careflow/patient"
	"careflow/qualification"
)

// Kind is the closed set of provisionable entity types. The kind is chosen
// once at the start of a saga run and selects that run's step list and
// compensation list.
type Kind string

const (
	KindDoctor   Kind = "doctor"
	KindPatient  Kind = "patient"
	KindHospital Kind = "hospital"
)

// CredentialStore is the identity-store adapter consumed by the saga. Its
// writes commit independently of the domain store.
type CredentialStore interface {
	CreateCredential(ctx context.Context, loginID, secret string) (identity.Credential, error)
	AssignRole(ctx context.Context, credentialID string, role identity.Role) error
	DeleteCredential(ctx context.Context, credentialID string) error
	FindByLoginID(ctx context.Context, loginID string) (identity.Credential, error)
	GetByID(ctx context.Context, credentialID string) (identity.Credential, error)
}

// AddressProvisioner stages address writes in the saga's unit of work.
type AddressProvisioner interface {
	Create(ctx context.Context, u *db.UnitOfWork, spec address.Spec) (address.Address, error)
	GetByID(ctx context.Context, id string) (address.Address, error)
	Delete(ctx context.Context, u *db.UnitOfWork, id string) (address.Address, error)
}

// ContactProvisioner stages contact writes in the saga's unit of work.
type ContactProvisioner interface {
	Create(ctx context.Context, u *db.UnitOfWork, spec contact.Spec) (contact.Contact, error)
	GetByID(ctx context.Context, id string) (contact.Contact, error)
	Delete(ctx context.Context, u *db.UnitOfWork, id string) (contact.Contact, error)
}

// ReferenceValidator resolves catalog ids to display names before any owned
// child is created.
type ReferenceValidator interface {
	ValidateReferences(ctx context.Context, ids []string) (map[string]string, error)
}

// DoctorGateway is the aggregate persistence gateway for doctors.
type DoctorGateway interface {
	Create(ctx context.Context, u *db.UnitOfWork, rec doctor.Record) (doctor.Record, error)
	GetByID(ctx context.Context, id string) (doctor.Record, error)
	Update(ctx context.Context, u *db.UnitOfWork, rec doctor.Record) (doctor.Record, error)
	Delete(ctx context.Context, u *db.UnitOfWork, id string) (doctor.Record, error)
	ReplaceSpecializationLinks(ctx context.Context, u *db.UnitOfWork, doctorID string, specializationIDs []string) error
}

// PatientGateway is the aggregate persistence gateway for patients.
type PatientGateway interface {
	Create(ctx context.Context, u *db.UnitOfWork, rec patient.Record) (patient.Record, error)
	GetByID(ctx context.Context, id string) (patient.Record, error)
	Update(ctx context.Context, u *db.UnitOfWork, rec patient.Record) (patient.Record, error)
	Delete(ctx context.Context, u *db.UnitOfWork, id string) (patient.Record, error)
}

// HospitalGateway is the aggregate persistence gateway for hospitals.
type HospitalGateway interface {
	Create(ctx context.Context, u *db.UnitOfWork, rec hospital.Record) (hospital.Record, error)
	GetByID(ctx context.Context, id string) (hospital.Record, error)
	Update(ctx context.Context, u *db.UnitOfWork, rec hospital.Record) (hospital.Record, error)
	Delete(ctx context.Context, u *db.UnitOfWork, id string) (hospital.Record, error)
}

// QualificationRepository manages the doctor-owned qualification collection.
type QualificationRepository interface {
	CreateForDoctor(ctx context.Context, u *db.UnitOfWork, doctorID string, specs []qualification.Spec) ([]qualification.Qualification, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]qualification.Qualification, error)
	DeleteByDoctor(ctx context.Context, u *db.UnitOfWork, doctorID string) error
}

// LabTestCatalog tears down a hospital's lab test offerings during
// deprovisioning.
type LabTestCatalog interface {
	DeleteByHospital(ctx context.Context, u *db.UnitOfWork, hospitalID string) error
}

// PrescriptionStore adjusts prescriptions when their patient or prescriber
// is deprovisioned.
type PrescriptionStore interface {
	DeleteByPatient(ctx context.Context, u *db.UnitOfWork, patientID string) error
	DetachDoctor(ctx context.Context, u *db.UnitOfWork, doctorID string) error
}

// OutboxWriter enqueues lifecycle events in the saga's unit of work.
type OutboxWriter interface {
	Enqueue(ctx context.Context, u *db.UnitOfWork, topic string, payload map[string]any) error
}

// Deps bundles the collaborators of a Coordinator.
type Deps struct {
	Pool           db.TxBeginner
	Credentials    CredentialStore
	Addresses      AddressProvisioner
	Contacts       ContactProvisioner
	Catalog        ReferenceValidator
	Doctors        DoctorGateway
	Patients       PatientGateway
	Hospitals      HospitalGateway
	Qualifications QualificationRepository
	LabTests       LabTestCatalog
	Medications    PrescriptionStore
	Outbox         OutboxWriter
	Logger         *slog.Logger
	Metrics        *metrics.Saga
}

// Coordinator sequences provisioning and deprovisioning across the identity
// store and the domain store. The two stores share no transaction manager:
// all-or-nothing behaviour is approximated by a fixed step order with
// matching compensations, uniformly for every entity kind.
type Coordinator struct {
	pool           db.TxBeginner
	credentials    CredentialStore
	addresses      AddressProvisioner
	contacts       ContactProvisioner
	catalog        ReferenceValidator
	doctors        DoctorGateway
	patients       PatientGateway
	hospitals      HospitalGateway
	qualifications QualificationRepository
	labTests       LabTestCatalog
	medications    PrescriptionStore
	outbox         OutboxWriter
	logger         *slog.Logger
	metrics        *metrics.Saga
	idGenerator    func() string
	now            func() time.Time
}

// NewCoordinator builds a Coordinator from its collaborators.
func NewCoordinator(deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		pool:           deps.Pool,
		credentials:    deps.Credentials,
		addresses:      deps.Addresses,
		contacts:       deps.Contacts,
		catalog:        deps.Catalog,
		doctors:        deps.Doctors,
		patients:       deps.Patients,
		hospitals:      deps.Hospitals,
		qualifications: deps.Qualifications,
		labTests:       deps.LabTests,
		medications:    deps.Medications,
		outbox:         deps.Outbox,
		logger:         logger,
		metrics:        deps.Metrics,
		idGenerator:    func() string { return uuid.NewString() },
		now:            time.Now,
	}
}

// WithIDGenerator overrides aggregate id generation, mainly for tests.
func (c *Coordinator) WithIDGenerator(gen func() string) *Coordinator {
	c.idGenerator = gen
	return c
}

// checkLoginFree rejects the run before any mutation when the login
// identifier is taken.
func (c *Coordinator) checkLoginFree(ctx context.Context, loginID string) error {
	_, err := c.credentials.FindByLoginID(ctx, loginID)
	switch {
	case err == nil:
		return &ConflictError{LoginID: loginID}
	case errors.Is(err, identity.ErrCredentialNotFound):
		return nil
	default:
		return err
	}
}

// roleFor maps an entity kind to the identity-store role assigned to its
// credential.
func roleFor(kind Kind) identity.Role {
	switch kind {
	case KindDoctor:
		return identity.RoleDoctor
	case KindPatient:
		return identity.RolePatient
	default:
		return identity.RoleHospital
	}
}

// loadOwned fetches the owned address and contact rows plus the login
// identifier behind the aggregate's credential reference. The credential is
// a weak cross-store reference: a missing credential yields an empty login
// id rather than an error.
func (c *Coordinator) loadOwned(ctx context.Context, addressID, contactID, credentialID string) (address.Address, contact.Contact, string, error) {
	addr, err := c.addresses.GetByID(ctx, addressID)
	if err != nil {
		return address.Address{}, contact.Contact{}, "", err
	}
	cont, err := c.contacts.GetByID(ctx, contactID)
	if err != nil {
		return address.Address{}, contact.Contact{}, "", err
	}
	var loginID string
	cred, err := c.credentials.GetByID(ctx, credentialID)
	switch {
	case err == nil:
		loginID = cred.LoginID
	case errors.Is(err, identity.ErrCredentialNotFound):
	default:
		return address.Address{}, contact.Contact{}, "", err
	}
	return addr, cont, loginID, nil
}

// deleteOwned stages the teardown of an aggregate's address and contact
// rows. Ownership is explicit: nothing cascades from the aggregate delete.
func (c *Coordinator) deleteOwned(ctx context.Context, u *db.UnitOfWork, addressID, contactID string) error {
	if _, err := c.addresses.Delete(ctx, u, addressID); err != nil && !errors.Is(err, address.ErrNotFound) {
		return err
	}
	if _, err := c.contacts.Delete(ctx, u, contactID); err != nil && !errors.Is(err, contact.ErrNotFound) {
		return err
	}
	return nil
}

// deleteCredentialBeforeCommit removes the identity-store credential while
// the domain unit of work is still open, so a credential failure rolls the
// whole deprovisioning back. A credential that is already gone is fine.
func (c *Coordinator) deleteCredentialBeforeCommit(ctx context.Context, credentialID string) error {
	err := c.credentials.DeleteCredential(ctx, credentialID)
	if err != nil && !errors.Is(err, identity.ErrCredentialNotFound) {
		return fmt.Errorf("provision: delete credential %s: %w", credentialID, err)
	}
	return nil
}

// partialDeprovision records a domain commit failure that happened after the
// credential was already deleted. The credential cannot be restored, so the
// stores are now split: the caller gets an error naming exactly what was
// removed and what remains.
func (c *Coordinator) partialDeprovision(ctx context.Context, kind Kind, id string, commitErr error) error {
	if c.metrics != nil {
		c.metrics.PartialDeprovisionings.WithLabelValues(string(kind)).Inc()
	}
	c.logger.ErrorContext(ctx, "deprovisioning left stores inconsistent",
		slog.String("kind", string(kind)),
		slog.String("id", id),
		slog.String("error", commitErr.Error()),
	)
	return &PartialDeprovisioningFailure{
		Kind:      kind,
		ID:        id,
		Removed:   []string{"credential"},
		Remaining: []string{"aggregate", "address", "contact"},
		Err:       commitErr,
	}
}

func (c *Coordinator) observeProvision(kind Kind, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
		var conflict *ConflictError
		var validation *ValidationError
		if errors.As(err, &conflict) {
			outcome = "conflict"
		} else if errors.As(err, &validation) {
			outcome = "validation"
		}
	}
	c.metrics.ProvisionTotal.WithLabelValues(string(kind), outcome).Inc()
}

func (c *Coordinator) observeDeprovision(kind Kind, err error, found bool) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case err != nil:
		outcome = "failure"
	case !found:
		outcome = "not_found"
	}
	c.metrics.DeprovisionTotal.WithLabelValues(string(kind), outcome).Inc()
}
