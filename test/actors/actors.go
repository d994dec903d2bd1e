package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"careflow/address"
	"careflow/contact"
	"careflow/provision"
	"careflow/qualification"
)

// Counters aggregates actor outcomes across a stress run.
type Counters struct {
	Provisioned   atomic.Int64
	Conflicts     atomic.Int64
	Validations   atomic.Int64
	Failures      atomic.Int64
	Compensated   atomic.Int64
	Deprovisioned atomic.Int64
	Missing       atomic.Int64
	Partial       atomic.Int64
}

// Ledger tracks successfully provisioned aggregate ids so deprovisioners
// can pick live targets.
type Ledger struct {
	mu        sync.Mutex
	doctors   []string
	patients  []string
	hospitals []string
}

func (l *Ledger) addDoctor(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.doctors = append(l.doctors, id)
}

func (l *Ledger) addPatient(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patients = append(l.patients, id)
}

func (l *Ledger) addHospital(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hospitals = append(l.hospitals, id)
}

// TakeRandom removes and returns a random live id of a random kind. ok is
// false when every list is empty.
func (l *Ledger) TakeRandom() (kind provision.Kind, id string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	type bucket struct {
		kind provision.Kind
		ids  *[]string
	}
	buckets := []bucket{
		{provision.KindDoctor, &l.doctors},
		{provision.KindPatient, &l.patients},
		{provision.KindHospital, &l.hospitals},
	}
	rand.Shuffle(len(buckets), func(i, j int) { buckets[i], buckets[j] = buckets[j], buckets[i] })

	for _, b := range buckets {
		n := len(*b.ids)
		if n == 0 {
			continue
		}
		i := rand.Intn(n)
		id := (*b.ids)[i]
		(*b.ids)[i] = (*b.ids)[n-1]
		*b.ids = (*b.ids)[:n-1]
		return b.kind, id, true
	}
	return "", "", false
}

// Remaining returns the ids still live at the end of a run.
func (l *Ledger) Remaining() (doctors, patients, hospitals []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.doctors...),
		append([]string(nil), l.patients...),
		append([]string(nil), l.hospitals...)
}

func randomAddress() address.Spec {
	return address.Spec{
		Line1:      fmt.Sprintf("%d Test Street", rand.Intn(9999)),
		City:       "Stresstown",
		Province:   "ST",
		PostalCode: fmt.Sprintf("%05d", rand.Intn(99999)),
		Country:    "US",
	}
}

func randomContact() contact.Spec {
	return contact.Spec{
		Phone: fmt.Sprintf("+1-555-%04d", rand.Intn(9999)),
		Email: fmt.Sprintf("actor-%s@stress.example", uuid.NewString()[:8]),
	}
}

func classifyProvisionErr(err error, counters *Counters) error {
	var conflict *provision.ConflictError
	var validation *provision.ValidationError
	var failure *provision.ProvisioningFailure
	var comp *provision.CompensationFailure
	switch {
	case errors.As(err, &conflict):
		counters.Conflicts.Add(1)
	case errors.As(err, &validation):
		counters.Validations.Add(1)
	case errors.As(err, &comp):
		counters.Compensated.Add(1)
	case errors.As(err, &failure):
		counters.Failures.Add(1)
	default:
		return fmt.Errorf("unclassified provisioning error: %w", err)
	}
	return nil
}

// DoctorProvisioner provisions doctors with fresh logins until stopped.
// Specialization ids must reference live catalog entries; occasionally a
// bogus id is thrown in to exercise the validation path.
func DoctorProvisioner(ctx context.Context, c *provision.Coordinator, specIDs []string, ledger *Ledger, counters *Counters, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		refs := []string{specIDs[rand.Intn(len(specIDs))]}
		if rand.Intn(10) == 0 {
			refs = append(refs, uuid.NewString())
		}

		dto, err := c.ProvisionDoctor(ctx, provision.DoctorRequest{
			LoginID:       "doc-" + uuid.NewString(),
			Secret:        "stress-secret-1",
			FirstName:     "Load",
			LastName:      "Bearer",
			LicenseNumber: fmt.Sprintf("LIC-%06d", rand.Intn(999999)),
			Address:       randomAddress(),
			Contact:       randomContact(),
			Qualifications: []qualification.Spec{
				{Degree: "MD", Institution: "Stress U", Year: 1990 + rand.Intn(30)},
			},
			SpecializationIDs: refs,
		})
		if err != nil {
			if cerr := classifyProvisionErr(err, counters); cerr != nil {
				return cerr
			}
		} else {
			counters.Provisioned.Add(1)
			ledger.addDoctor(dto.ID)
		}
		time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
	}
}

// PatientProvisioner provisions patients with fresh logins until stopped.
func PatientProvisioner(ctx context.Context, c *provision.Coordinator, ledger *Ledger, counters *Counters, stop <-chan struct{}) error {
	groups := []string{"A+", "B+", "O-", "AB+"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		dto, err := c.ProvisionPatient(ctx, provision.PatientRequest{
			LoginID:    "pat-" + uuid.NewString(),
			Secret:     "stress-secret-1",
			FirstName:  "Wait",
			LastName:   "Listed",
			BirthDate:  time.Date(1950+rand.Intn(60), time.Month(1+rand.Intn(12)), 1+rand.Intn(28), 0, 0, 0, 0, time.UTC),
			BloodGroup: groups[rand.Intn(len(groups))],
			Address:    randomAddress(),
			Contact:    randomContact(),
		})
		if err != nil {
			if cerr := classifyProvisionErr(err, counters); cerr != nil {
				return cerr
			}
		} else {
			counters.Provisioned.Add(1)
			ledger.addPatient(dto.ID)
		}
		time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
	}
}

// HospitalProvisioner provisions hospitals with fresh logins until stopped.
func HospitalProvisioner(ctx context.Context, c *provision.Coordinator, ledger *Ledger, counters *Counters, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		dto, err := c.ProvisionHospital(ctx, provision.HospitalRequest{
			LoginID:            "hos-" + uuid.NewString(),
			Secret:             "stress-secret-1",
			Name:               fmt.Sprintf("General Hospital %d", rand.Intn(10000)),
			RegistrationNumber: fmt.Sprintf("REG-%06d", rand.Intn(999999)),
			Address:            randomAddress(),
			Contact:            randomContact(),
		})
		if err != nil {
			if cerr := classifyProvisionErr(err, counters); cerr != nil {
				return cerr
			}
		} else {
			counters.Provisioned.Add(1)
			ledger.addHospital(dto.ID)
		}
		time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
	}
}

// DuplicateRegistrar hammers one fixed login from several goroutines. At
// most one provisioning may ever win; everyone else must see a conflict.
func DuplicateRegistrar(ctx context.Context, c *provision.Coordinator, loginID string, wins *atomic.Int64, counters *Counters, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := c.ProvisionPatient(ctx, provision.PatientRequest{
			LoginID:   loginID,
			Secret:    "stress-secret-1",
			FirstName: "Dupe",
			LastName:  "Racer",
			BirthDate: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			Address:   randomAddress(),
			Contact:   randomContact(),
		})
		switch {
		case err == nil:
			wins.Add(1)
		default:
			if cerr := classifyProvisionErr(err, counters); cerr != nil {
				return cerr
			}
		}
		time.Sleep(time.Duration(2+rand.Intn(10)) * time.Millisecond)
	}
}

// Deprovisioner tears down random live aggregates until stopped.
func Deprovisioner(ctx context.Context, c *provision.Coordinator, ledger *Ledger, counters *Counters, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		kind, id, ok := ledger.TakeRandom()
		if !ok {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		var (
			conf provision.Confirmation
			err  error
		)
		switch kind {
		case provision.KindDoctor:
			conf, err = c.DeprovisionDoctor(ctx, id)
		case provision.KindPatient:
			conf, err = c.DeprovisionPatient(ctx, id)
		default:
			conf, err = c.DeprovisionHospital(ctx, id)
		}

		switch {
		case err == nil && conf.Deleted:
			counters.Deprovisioned.Add(1)
		case err == nil:
			counters.Missing.Add(1)
		default:
			var partial *provision.PartialDeprovisioningFailure
			if errors.As(err, &partial) {
				counters.Partial.Add(1)
			} else {
				counters.Failures.Add(1)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}
