package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"careflow/address"
	"careflow/contact"
	"careflow/db"
	"careflow/doctor"
	"careflow/hospital"
	"careflow/identity"
	"careflow/patient"
	"careflow/qualification"
	"careflow/specialization"
)

// fakeTx satisfies pgx.Tx so db.BeginUnit can be exercised without a
// database. The repository fakes below never touch the transaction handle;
// only Commit and Rollback matter.
type fakeTx struct {
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errors.New("not supported") }

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not supported")
}

func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (t *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not supported")
}

func (t *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not supported")
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (t *fakeTx) Conn() *pgx.Conn { return nil }

type fakePool struct {
	beginErr error
	tx       *fakeTx
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	p.tx = &fakeTx{}
	return p.tx, nil
}

// poolWithCommitErr makes every unit of work fail at commit time.
type poolWithCommitErr struct {
	fakePool
	commitErr error
}

func (p *poolWithCommitErr) Begin(ctx context.Context) (pgx.Tx, error) {
	p.tx = &fakeTx{commitErr: p.commitErr}
	return p.tx, nil
}

type fakeCredentials struct {
	byLogin   map[string]identity.Credential
	byID      map[string]identity.Credential
	createErr error
	assignErr error
	deleteErr error
	deleted   []string
	nextID    int
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{
		byLogin: map[string]identity.Credential{},
		byID:    map[string]identity.Credential{},
	}
}

func (f *fakeCredentials) CreateCredential(ctx context.Context, loginID, secret string) (identity.Credential, error) {
	if f.createErr != nil {
		return identity.Credential{}, f.createErr
	}
	if _, ok := f.byLogin[loginID]; ok {
		return identity.Credential{}, identity.ErrDuplicateLogin
	}
	f.nextID++
	cred := identity.Credential{ID: fmt.Sprintf("cred-%d", f.nextID), LoginID: loginID}
	f.byLogin[loginID] = cred
	f.byID[cred.ID] = cred
	return cred, nil
}

func (f *fakeCredentials) AssignRole(ctx context.Context, credentialID string, role identity.Role) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	cred, ok := f.byID[credentialID]
	if !ok {
		return identity.ErrCredentialNotFound
	}
	cred.Role = role
	f.byID[credentialID] = cred
	f.byLogin[cred.LoginID] = cred
	return nil
}

func (f *fakeCredentials) DeleteCredential(ctx context.Context, credentialID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	cred, ok := f.byID[credentialID]
	if !ok {
		return identity.ErrCredentialNotFound
	}
	delete(f.byID, credentialID)
	delete(f.byLogin, cred.LoginID)
	f.deleted = append(f.deleted, credentialID)
	return nil
}

func (f *fakeCredentials) FindByLoginID(ctx context.Context, loginID string) (identity.Credential, error) {
	cred, ok := f.byLogin[loginID]
	if !ok {
		return identity.Credential{}, identity.ErrCredentialNotFound
	}
	return cred, nil
}

func (f *fakeCredentials) GetByID(ctx context.Context, credentialID string) (identity.Credential, error) {
	cred, ok := f.byID[credentialID]
	if !ok {
		return identity.Credential{}, identity.ErrCredentialNotFound
	}
	return cred, nil
}

type fakeAddresses struct {
	byID      map[string]address.Address
	createErr error
	created   int
	deleted   []string
}

func newFakeAddresses() *fakeAddresses {
	return &fakeAddresses{byID: map[string]address.Address{}}
}

func (f *fakeAddresses) Create(ctx context.Context, u *db.UnitOfWork, spec address.Spec) (address.Address, error) {
	if f.createErr != nil {
		return address.Address{}, f.createErr
	}
	f.created++
	a := address.Address{
		ID:         fmt.Sprintf("addr-%d", f.created),
		Line1:      spec.Line1,
		City:       spec.City,
		Province:   spec.Province,
		PostalCode: spec.PostalCode,
		Country:    spec.Country,
	}
	f.byID[a.ID] = a
	return a, nil
}

func (f *fakeAddresses) GetByID(ctx context.Context, id string) (address.Address, error) {
	a, ok := f.byID[id]
	if !ok {
		return address.Address{}, address.ErrNotFound
	}
	return a, nil
}

func (f *fakeAddresses) Delete(ctx context.Context, u *db.UnitOfWork, id string) (address.Address, error) {
	a, ok := f.byID[id]
	if !ok {
		return address.Address{}, address.ErrNotFound
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return a, nil
}

type fakeContacts struct {
	byID      map[string]contact.Contact
	createErr error
	created   int
	deleted   []string
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{byID: map[string]contact.Contact{}}
}

func (f *fakeContacts) Create(ctx context.Context, u *db.UnitOfWork, spec contact.Spec) (contact.Contact, error) {
	if f.createErr != nil {
		return contact.Contact{}, f.createErr
	}
	f.created++
	c := contact.Contact{ID: fmt.Sprintf("cont-%d", f.created), Phone: spec.Phone, Email: spec.Email}
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeContacts) GetByID(ctx context.Context, id string) (contact.Contact, error) {
	c, ok := f.byID[id]
	if !ok {
		return contact.Contact{}, contact.ErrNotFound
	}
	return c, nil
}

func (f *fakeContacts) Delete(ctx context.Context, u *db.UnitOfWork, id string) (contact.Contact, error) {
	c, ok := f.byID[id]
	if !ok {
		return contact.Contact{}, contact.ErrNotFound
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return c, nil
}

type fakeCatalog struct {
	names map[string]string
}

func (f *fakeCatalog) ValidateReferences(ctx context.Context, ids []string) (map[string]string, error) {
	var unknown []string
	out := map[string]string{}
	for _, id := range ids {
		name, ok := f.names[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		out[id] = name
	}
	if len(unknown) > 0 {
		return nil, &specialization.UnknownReferenceError{IDs: unknown}
	}
	return out, nil
}

type fakeDoctors struct {
	byID      map[string]doctor.Record
	createErr error
	links     map[string][]string
}

func newFakeDoctors() *fakeDoctors {
	return &fakeDoctors{byID: map[string]doctor.Record{}, links: map[string][]string{}}
}

func (f *fakeDoctors) Create(ctx context.Context, u *db.UnitOfWork, rec doctor.Record) (doctor.Record, error) {
	if f.createErr != nil {
		return doctor.Record{}, f.createErr
	}
	f.byID[rec.ID] = rec
	return rec, nil
}

func (f *fakeDoctors) GetByID(ctx context.Context, id string) (doctor.Record, error) {
	rec, ok := f.byID[id]
	if !ok {
		return doctor.Record{}, doctor.ErrNotFound
	}
	return rec, nil
}

func (f *fakeDoctors) Update(ctx context.Context, u *db.UnitOfWork, rec doctor.Record) (doctor.Record, error) {
	if _, ok := f.byID[rec.ID]; !ok {
		return doctor.Record{}, doctor.ErrNotFound
	}
	f.byID[rec.ID] = rec
	return rec, nil
}

func (f *fakeDoctors) Delete(ctx context.Context, u *db.UnitOfWork, id string) (doctor.Record, error) {
	rec, ok := f.byID[id]
	if !ok {
		return doctor.Record{}, doctor.ErrNotFound
	}
	delete(f.byID, id)
	delete(f.links, id)
	return rec, nil
}

func (f *fakeDoctors) ReplaceSpecializationLinks(ctx context.Context, u *db.UnitOfWork, doctorID string, specializationIDs []string) error {
	f.links[doctorID] = specializationIDs
	return nil
}

type fakePatients struct {
	byID map[string]patient.Record
}

func newFakePatients() *fakePatients { return &fakePatients{byID: map[string]patient.Record{}} }

func (f *fakePatients) Create(ctx context.Context, u *db.UnitOfWork, rec patient.Record) (patient.Record, error) {
	f.byID[rec.ID] = rec
	return rec, nil
}

func (f *fakePatients) GetByID(ctx context.Context, id string) (patient.Record, error) {
	rec, ok := f.byID[id]
	if !ok {
		return patient.Record{}, patient.ErrNotFound
	}
	return rec, nil
}

func (f *fakePatients) Update(ctx context.Context, u *db.UnitOfWork, rec patient.Record) (patient.Record, error) {
	if _, ok := f.byID[rec.ID]; !ok {
		return patient.Record{}, patient.ErrNotFound
	}
	f.byID[rec.ID] = rec
	return rec, nil
}

func (f *fakePatients) Delete(ctx context.Context, u *db.UnitOfWork, id string) (patient.Record, error) {
	rec, ok := f.byID[id]
	if !ok {
		return patient.Record{}, patient.ErrNotFound
	}
	delete(f.byID, id)
	return rec, nil
}

type fakeHospitals struct {
	byID map[string]hospital.Record
}

func newFakeHospitals() *fakeHospitals { return &fakeHospitals{byID: map[string]hospital.Record{}} }

func (f *fakeHospitals) Create(ctx context.Context, u *db.UnitOfWork, rec hospital.Record) (hospital.Record, error) {
	f.byID[rec.ID] = rec
	return rec, nil
}

func (f *fakeHospitals) GetByID(ctx context.Context, id string) (hospital.Record, error) {
	rec, ok := f.byID[id]
	if !ok {
		return hospital.Record{}, hospital.ErrNotFound
	}
	return rec, nil
}

func (f *fakeHospitals) Update(ctx context.Context, u *db.UnitOfWork, rec hospital.Record) (hospital.Record, error) {
	if _, ok := f.byID[rec.ID]; !ok {
		return hospital.Record{}, hospital.ErrNotFound
	}
	f.byID[rec.ID] = rec
	return rec, nil
}

func (f *fakeHospitals) Delete(ctx context.Context, u *db.UnitOfWork, id string) (hospital.Record, error) {
	rec, ok := f.byID[id]
	if !ok {
		return hospital.Record{}, hospital.ErrNotFound
	}
	delete(f.byID, id)
	return rec, nil
}

type fakeQuals struct {
	byDoctor map[string][]qualification.Qualification
	nextID   int
}

func newFakeQuals() *fakeQuals {
	return &fakeQuals{byDoctor: map[string][]qualification.Qualification{}}
}

func (f *fakeQuals) CreateForDoctor(ctx context.Context, u *db.UnitOfWork, doctorID string, specs []qualification.Spec) ([]qualification.Qualification, error) {
	var out []qualification.Qualification
	for _, s := range specs {
		f.nextID++
		out = append(out, qualification.Qualification{
			ID:          fmt.Sprintf("qual-%d", f.nextID),
			DoctorID:    doctorID,
			Degree:      s.Degree,
			Institution: s.Institution,
			Year:        s.Year,
		})
	}
	f.byDoctor[doctorID] = out
	return out, nil
}

func (f *fakeQuals) ListByDoctor(ctx context.Context, doctorID string) ([]qualification.Qualification, error) {
	return f.byDoctor[doctorID], nil
}

func (f *fakeQuals) DeleteByDoctor(ctx context.Context, u *db.UnitOfWork, doctorID string) error {
	delete(f.byDoctor, doctorID)
	return nil
}

type fakeLabTests struct {
	droppedHospitals []string
}

func (f *fakeLabTests) DeleteByHospital(ctx context.Context, u *db.UnitOfWork, hospitalID string) error {
	f.droppedHospitals = append(f.droppedHospitals, hospitalID)
	return nil
}

type fakeMedications struct {
	droppedPatients []string
	detachedDoctors []string
}

func (f *fakeMedications) DeleteByPatient(ctx context.Context, u *db.UnitOfWork, patientID string) error {
	f.droppedPatients = append(f.droppedPatients, patientID)
	return nil
}

func (f *fakeMedications) DetachDoctor(ctx context.Context, u *db.UnitOfWork, doctorID string) error {
	f.detachedDoctors = append(f.detachedDoctors, doctorID)
	return nil
}

type enqueued struct {
	topic   string
	payload map[string]any
}

type fakeOutbox struct {
	events []enqueued
}

func (f *fakeOutbox) Enqueue(ctx context.Context, u *db.UnitOfWork, topic string, payload map[string]any) error {
	f.events = append(f.events, enqueued{topic: topic, payload: payload})
	return nil
}

type harness struct {
	pool        db.TxBeginner
	credentials *fakeCredentials
	addresses   *fakeAddresses
	contacts    *fakeContacts
	catalog     *fakeCatalog
	doctors     *fakeDoctors
	patients    *fakePatients
	hospitals   *fakeHospitals
	quals       *fakeQuals
	labTests    *fakeLabTests
	medications *fakeMedications
	outbox      *fakeOutbox
	coordinator *Coordinator
}

func newHarness(pool db.TxBeginner) *harness {
	h := &harness{
		pool:        pool,
		credentials: newFakeCredentials(),
		addresses:   newFakeAddresses(),
		contacts:    newFakeContacts(),
		catalog:     &fakeCatalog{names: map[string]string{"spec-1": "Cardiology", "spec-2": "Neurology"}},
		doctors:     newFakeDoctors(),
		patients:    newFakePatients(),
		hospitals:   newFakeHospitals(),
		quals:       newFakeQuals(),
		labTests:    &fakeLabTests{},
		medications: &fakeMedications{},
		outbox:      &fakeOutbox{},
	}
	h.coordinator = NewCoordinator(Deps{
		Pool:           pool,
		Credentials:    h.credentials,
		Addresses:      h.addresses,
		Contacts:       h.contacts,
		Catalog:        h.catalog,
		Doctors:        h.doctors,
		Patients:       h.patients,
		Hospitals:      h.hospitals,
		Qualifications: h.quals,
		LabTests:       h.labTests,
		Medications:    h.medications,
		Outbox:         h.outbox,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func doctorRequest() DoctorRequest {
	return DoctorRequest{
		LoginID:       "gregory.house",
		Secret:        "not-lupus-ever",
		FirstName:     "Gregory",
		LastName:      "House",
		LicenseNumber: "NJ-221B",
		Address:       address.Spec{Line1: "221B Baker St", City: "Princeton", Province: "NJ", PostalCode: "08540", Country: "US"},
		Contact:       contact.Spec{Phone: "+1-555-0100", Email: "house@ppth.example"},
		Qualifications: []qualification.Spec{
			{Degree: "MD", Institution: "Johns Hopkins", Year: 1984},
		},
		SpecializationIDs: []string{"spec-1", "spec-2"},
	}
}

func TestProvisionDoctorComposesAggregate(t *testing.T) {
	h := newHarness(&fakePool{})
	h.coordinator.WithIDGenerator(func() string { return "doc-221b" })

	dto, err := h.coordinator.ProvisionDoctor(context.Background(), doctorRequest())
	if err != nil {
		t.Fatalf("ProvisionDoctor: %v", err)
	}
	if dto.ID != "doc-221b" {
		t.Fatalf("aggregate id = %q, want the injected one", dto.ID)
	}
	if dto.LoginID != "gregory.house" {
		t.Errorf("login id = %q", dto.LoginID)
	}
	if dto.Address.City != "Princeton" || dto.Contact.Email != "house@ppth.example" {
		t.Errorf("owned records not composed: %+v %+v", dto.Address, dto.Contact)
	}
	if len(dto.Qualifications) != 1 || dto.Qualifications[0].Degree != "MD" {
		t.Errorf("qualifications = %+v", dto.Qualifications)
	}
	if len(dto.Specializations) != 2 || dto.Specializations[0].Name != "Cardiology" {
		t.Errorf("specializations = %+v", dto.Specializations)
	}

	cred, err := h.credentials.FindByLoginID(context.Background(), "gregory.house")
	if err != nil {
		t.Fatalf("credential not created: %v", err)
	}
	if cred.Role != identity.RoleDoctor {
		t.Errorf("role = %q, want %q", cred.Role, identity.RoleDoctor)
	}
	if len(h.outbox.events) != 1 || h.outbox.events[0].topic != "entity.provisioned" {
		t.Errorf("outbox events = %+v", h.outbox.events)
	}
}

func TestProvisionDoctorRejectsDuplicateLogin(t *testing.T) {
	h := newHarness(&fakePool{})
	if _, err := h.credentials.CreateCredential(context.Background(), "gregory.house", "x"); err != nil {
		t.Fatal(err)
	}

	_, err := h.coordinator.ProvisionDoctor(context.Background(), doctorRequest())
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.LoginID != "gregory.house" {
		t.Errorf("conflict login = %q", conflict.LoginID)
	}
	if len(h.doctors.byID) != 0 || h.addresses.created != 0 {
		t.Error("conflict must be rejected before any domain write")
	}
	if len(h.credentials.deleted) != 0 {
		t.Error("pre-flight conflict must not trigger compensation")
	}
}

func TestProvisionDoctorUnknownSpecializationCompensatesCredential(t *testing.T) {
	h := newHarness(&fakePool{})
	req := doctorRequest()
	req.SpecializationIDs = []string{"spec-1", "spec-404", "spec-500"}

	_, err := h.coordinator.ProvisionDoctor(context.Background(), req)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validation.UnknownIDs) != 2 {
		t.Errorf("unknown ids = %v, want both bad ids listed", validation.UnknownIDs)
	}
	// The credential was created before reference validation, so the unwind
	// must have deleted it again.
	if len(h.credentials.deleted) != 1 {
		t.Fatalf("credential deletions = %v, want 1", h.credentials.deleted)
	}
	if _, err := h.credentials.FindByLoginID(context.Background(), req.LoginID); !errors.Is(err, identity.ErrCredentialNotFound) {
		t.Errorf("credential still present after compensation: %v", err)
	}
	if len(h.doctors.byID) != 0 {
		t.Error("no aggregate may exist after a validation failure")
	}
}

func TestProvisionDoctorAggregateFailureUnwinds(t *testing.T) {
	pool := &fakePool{}
	h := newHarness(pool)
	cause := errors.New("doctor: create: connection reset")
	h.doctors.createErr = cause

	_, err := h.coordinator.ProvisionDoctor(context.Background(), doctorRequest())
	var failure *ProvisioningFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected ProvisioningFailure, got %v", err)
	}
	if failure.Step != "create aggregate" {
		t.Errorf("failed step = %q", failure.Step)
	}
	if !errors.Is(err, cause) {
		t.Error("triggering error must be reachable through Unwrap")
	}
	if len(h.credentials.deleted) != 1 {
		t.Errorf("credential deletions = %v, want compensation", h.credentials.deleted)
	}
	if pool.tx == nil || !pool.tx.rolledBack {
		t.Error("unit of work must be rolled back")
	}
	if pool.tx.committed {
		t.Error("unit of work must not commit after a step failure")
	}
}

func TestProvisionDoctorCompensationFailureSurfacesBothErrors(t *testing.T) {
	h := newHarness(&fakePool{})
	cause := errors.New("doctor: create: connection reset")
	compCause := errors.New("identity: delete: store unavailable")
	h.doctors.createErr = cause
	h.credentials.deleteErr = compCause

	_, err := h.coordinator.ProvisionDoctor(context.Background(), doctorRequest())
	var comp *CompensationFailure
	if !errors.As(err, &comp) {
		t.Fatalf("expected CompensationFailure, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("triggering error must be reachable")
	}
	if !errors.Is(err, compCause) {
		t.Error("compensation error must be reachable")
	}
}

func TestProvisionPatientAndHospital(t *testing.T) {
	h := newHarness(&fakePool{})

	p, err := h.coordinator.ProvisionPatient(context.Background(), PatientRequest{
		LoginID:    "lisa.cuddy",
		Secret:     "hospital-admin-1",
		FirstName:  "Lisa",
		LastName:   "Cuddy",
		BloodGroup: "O+",
		Address:    address.Spec{Line1: "1 Main St", City: "Princeton", Province: "NJ", PostalCode: "08540", Country: "US"},
		Contact:    contact.Spec{Phone: "+1-555-0101", Email: "cuddy@example.com"},
	})
	if err != nil {
		t.Fatalf("ProvisionPatient: %v", err)
	}
	if p.BloodGroup != "O+" || p.Address.ID == "" {
		t.Errorf("patient dto = %+v", p)
	}

	hos, err := h.coordinator.ProvisionHospital(context.Background(), HospitalRequest{
		LoginID:            "ppth",
		Secret:             "teaching-hospital",
		Name:               "Princeton-Plainsboro",
		RegistrationNumber: "NJ-0042",
		Address:            address.Spec{Line1: "100 Hospital Way", City: "Princeton", Province: "NJ", PostalCode: "08540", Country: "US"},
		Contact:            contact.Spec{Phone: "+1-555-0102", Email: "front@ppth.example"},
	})
	if err != nil {
		t.Fatalf("ProvisionHospital: %v", err)
	}
	if hos.Name != "Princeton-Plainsboro" {
		t.Errorf("hospital dto = %+v", hos)
	}

	pc, _ := h.credentials.FindByLoginID(context.Background(), "lisa.cuddy")
	if pc.Role != identity.RolePatient {
		t.Errorf("patient role = %q", pc.Role)
	}
	hc, _ := h.credentials.FindByLoginID(context.Background(), "ppth")
	if hc.Role != identity.RoleHospital {
		t.Errorf("hospital role = %q", hc.Role)
	}
}

func TestProvisionRejectsMissingFields(t *testing.T) {
	h := newHarness(&fakePool{})

	req := doctorRequest()
	req.LoginID = ""
	_, err := h.coordinator.ProvisionDoctor(context.Background(), req)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(h.credentials.byID) != 0 {
		t.Error("input validation must run before any store call")
	}
}

func TestDeprovisionDoctorRemovesEverything(t *testing.T) {
	h := newHarness(&fakePool{})
	dto, err := h.coordinator.ProvisionDoctor(context.Background(), doctorRequest())
	if err != nil {
		t.Fatal(err)
	}

	conf, err := h.coordinator.DeprovisionDoctor(context.Background(), dto.ID)
	if err != nil {
		t.Fatalf("DeprovisionDoctor: %v", err)
	}
	if !conf.Deleted {
		t.Fatalf("confirmation = %+v", conf)
	}
	if len(h.doctors.byID) != 0 {
		t.Error("aggregate row must be gone")
	}
	if len(h.addresses.deleted) != 1 || len(h.contacts.deleted) != 1 {
		t.Error("owned address and contact must be torn down explicitly")
	}
	if _, err := h.credentials.GetByID(context.Background(), dto.CredentialID); !errors.Is(err, identity.ErrCredentialNotFound) {
		t.Errorf("credential must be deleted, got %v", err)
	}
	last := h.outbox.events[len(h.outbox.events)-1]
	if last.topic != "entity.deprovisioned" {
		t.Errorf("last outbox topic = %q", last.topic)
	}
	if len(h.medications.detachedDoctors) != 1 || h.medications.detachedDoctors[0] != dto.ID {
		t.Errorf("prescriber references not detached: %v", h.medications.detachedDoctors)
	}
}

func TestDeprovisionDoctorMissingIsNotAnError(t *testing.T) {
	h := newHarness(&fakePool{})

	conf, err := h.coordinator.DeprovisionDoctor(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("missing entity must not be an error, got %v", err)
	}
	if conf.Deleted {
		t.Errorf("confirmation = %+v", conf)
	}

	// Repeating it stays a no-op.
	conf, err = h.coordinator.DeprovisionDoctor(context.Background(), "no-such-id")
	if err != nil || conf.Deleted {
		t.Errorf("repeat deprovision: conf=%+v err=%v", conf, err)
	}
}

func TestDeprovisionDoctorCredentialFailureRollsBack(t *testing.T) {
	pool := &fakePool{}
	h := newHarness(pool)
	dto, err := h.coordinator.ProvisionDoctor(context.Background(), doctorRequest())
	if err != nil {
		t.Fatal(err)
	}
	h.credentials.deleteErr = errors.New("identity: store unavailable")

	_, err = h.coordinator.DeprovisionDoctor(context.Background(), dto.ID)
	if err == nil {
		t.Fatal("expected error")
	}
	var partial *PartialDeprovisioningFailure
	if errors.As(err, &partial) {
		t.Fatal("credential failure before commit must not be partial: the unit rolls back")
	}
	if pool.tx == nil || !pool.tx.rolledBack {
		t.Error("domain unit of work must be rolled back")
	}
}

func TestDeprovisionDoctorCommitFailureIsPartial(t *testing.T) {
	seed := newHarness(&fakePool{})
	dto, err := seed.coordinator.ProvisionDoctor(context.Background(), doctorRequest())
	if err != nil {
		t.Fatal(err)
	}

	// Re-point the same fakes at a pool whose commits fail, so the seeded
	// aggregate survives while the deprovision commit breaks.
	pool := &poolWithCommitErr{commitErr: errors.New("db: connection lost")}
	broken := NewCoordinator(Deps{
		Pool:           pool,
		Credentials:    seed.credentials,
		Addresses:      seed.addresses,
		Contacts:       seed.contacts,
		Catalog:        seed.catalog,
		Doctors:        seed.doctors,
		Patients:       seed.patients,
		Hospitals:      seed.hospitals,
		Qualifications: seed.quals,
		LabTests:       seed.labTests,
		Medications:    seed.medications,
		Outbox:         seed.outbox,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err = broken.DeprovisionDoctor(context.Background(), dto.ID)
	var partial *PartialDeprovisioningFailure
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialDeprovisioningFailure, got %v", err)
	}
	if partial.Kind != KindDoctor || partial.ID != dto.ID {
		t.Errorf("partial = %+v", partial)
	}
	if len(partial.Removed) != 1 || partial.Removed[0] != "credential" {
		t.Errorf("removed = %v, want only the credential", partial.Removed)
	}
	// The credential is genuinely gone: its delete committed independently.
	if _, err := seed.credentials.GetByID(context.Background(), dto.CredentialID); !errors.Is(err, identity.ErrCredentialNotFound) {
		t.Errorf("credential should be deleted, got %v", err)
	}
}

func TestGetDoctorComposesAggregate(t *testing.T) {
	h := newHarness(&fakePool{})
	dto, err := h.coordinator.ProvisionDoctor(context.Background(), doctorRequest())
	if err != nil {
		t.Fatal(err)
	}

	got, err := h.coordinator.GetDoctor(context.Background(), dto.ID)
	if err != nil {
		t.Fatalf("GetDoctor: %v", err)
	}
	if got.LoginID != dto.LoginID || got.Address.ID != dto.Address.ID || len(got.Specializations) != 2 {
		t.Errorf("got %+v, want composition matching %+v", got, dto)
	}

	if _, err := h.coordinator.GetDoctor(context.Background(), "no-such-id"); !errors.Is(err, doctor.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateDoctorReplacesProfileAndLinks(t *testing.T) {
	h := newHarness(&fakePool{})
	dto, err := h.coordinator.ProvisionDoctor(context.Background(), doctorRequest())
	if err != nil {
		t.Fatal(err)
	}

	updated, err := h.coordinator.UpdateDoctor(context.Background(), DoctorUpdate{
		ID:                dto.ID,
		FirstName:         "Greg",
		LastName:          "House",
		LicenseNumber:     "NJ-221C",
		SpecializationIDs: []string{"spec-2"},
	})
	if err != nil {
		t.Fatalf("UpdateDoctor: %v", err)
	}
	if updated.FirstName != "Greg" || updated.LicenseNumber != "NJ-221C" {
		t.Errorf("profile not replaced: %+v", updated)
	}
	if len(h.doctors.links[dto.ID]) != 1 || h.doctors.links[dto.ID][0] != "spec-2" {
		t.Errorf("links = %v", h.doctors.links[dto.ID])
	}

	_, err = h.coordinator.UpdateDoctor(context.Background(), DoctorUpdate{
		ID:                dto.ID,
		FirstName:         "Greg",
		LastName:          "House",
		SpecializationIDs: []string{"spec-404"},
	})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for unknown link, got %v", err)
	}
}

func TestDeprovisionPatientAndHospital(t *testing.T) {
	h := newHarness(&fakePool{})
	p, err := h.coordinator.ProvisionPatient(context.Background(), PatientRequest{
		LoginID:   "james.wilson",
		Secret:    "oncology-rules",
		FirstName: "James",
		LastName:  "Wilson",
		Address:   address.Spec{Line1: "2 Side St", City: "Princeton", Province: "NJ", PostalCode: "08540", Country: "US"},
		Contact:   contact.Spec{Phone: "+1-555-0103", Email: "wilson@example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}

	conf, err := h.coordinator.DeprovisionPatient(context.Background(), p.ID)
	if err != nil || !conf.Deleted {
		t.Fatalf("DeprovisionPatient: conf=%+v err=%v", conf, err)
	}
	if _, err := h.credentials.FindByLoginID(context.Background(), "james.wilson"); !errors.Is(err, identity.ErrCredentialNotFound) {
		t.Errorf("patient credential should be gone, got %v", err)
	}

	conf, err = h.coordinator.DeprovisionHospital(context.Background(), "missing-hospital")
	if err != nil || conf.Deleted {
		t.Errorf("missing hospital: conf=%+v err=%v", conf, err)
	}
}
