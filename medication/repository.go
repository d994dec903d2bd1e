package medication

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"careflow/db"
)

var (
	// ErrNotFound signals the requested prescription does not exist.
	ErrNotFound = errors.New("medication: not found")
	// ErrBadReference signals the prescription references a patient or
	// doctor that does not exist.
	ErrBadReference = errors.New("medication: unknown patient or doctor")
	// ErrDiscontinued signals the prescription was already discontinued.
	ErrDiscontinued = errors.New("medication: already discontinued")
)

// Repository handles data access for prescriptions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, patient_id, doctor_id, name, dosage, instructions, status::text, prescribed_at, discontinued_at`

// Prescribe inserts a new active prescription.
func (r *Repository) Prescribe(ctx context.Context, spec Spec) (Record, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return Record{}, fmt.Errorf("medication: name required")
	}
	if strings.TrimSpace(spec.Dosage) == "" {
		return Record{}, fmt.Errorf("medication: dosage required")
	}

	const insertSQL = `
		INSERT INTO medications (patient_id, doctor_id, name, dosage, instructions, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING ` + columns

	var instructions *string
	if spec.Instructions != "" {
		instructions = &spec.Instructions
	}

	rec, err := scanRecord(r.pool.QueryRow(ctx, insertSQL, spec.PatientID, spec.DoctorID, spec.Name, spec.Dosage, instructions))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Record{}, ErrBadReference
		}
		return Record{}, fmt.Errorf("medication: prescribe: %w", err)
	}
	return rec, nil
}

// GetByID fetches a prescription by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Record, error) {
	if !db.ValidUUID(id) {
		return Record{}, ErrNotFound
	}

	const selectSQL = `SELECT ` + columns + ` FROM medications WHERE id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("medication: get by id: %w", err)
	}
	return rec, nil
}

// ListByPatient fetches a patient's prescriptions, newest first.
func (r *Repository) ListByPatient(ctx context.Context, patientID string) ([]Record, error) {
	if !db.ValidUUID(patientID) {
		return []Record{}, nil
	}

	const selectSQL = `SELECT ` + columns + ` FROM medications WHERE patient_id = $1 ORDER BY prescribed_at DESC`

	rows, err := r.pool.Query(ctx, selectSQL, patientID)
	if err != nil {
		return nil, fmt.Errorf("medication: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("medication: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("medication: iterate: %w", err)
	}
	return out, nil
}

// Discontinue ends an active prescription. Discontinuing twice returns
// ErrDiscontinued; a missing id returns ErrNotFound.
func (r *Repository) Discontinue(ctx context.Context, id string) (Record, error) {
	if !db.ValidUUID(id) {
		return Record{}, ErrNotFound
	}

	const updateSQL = `
		UPDATE medications
		SET status = 'discontinued', discontinued_at = now()
		WHERE id = $1 AND status <> 'discontinued'
		RETURNING ` + columns

	rec, err := scanRecord(r.pool.QueryRow(ctx, updateSQL, id))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("medication: discontinue: %w", err)
	}

	var status Status
	if err := r.pool.QueryRow(ctx, `SELECT status::text FROM medications WHERE id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("medication: discontinue fetch: %w", err)
	}
	return Record{}, ErrDiscontinued
}

// DeleteByPatient stages removal of a patient's prescriptions in the
// caller's unit of work. Used when the patient is deprovisioned.
func (r *Repository) DeleteByPatient(ctx context.Context, u *db.UnitOfWork, patientID string) error {
	if !db.ValidUUID(patientID) {
		return nil
	}
	if err := u.Exec(ctx, `DELETE FROM medications WHERE patient_id = $1`, patientID); err != nil {
		return fmt.Errorf("medication: delete by patient: %w", err)
	}
	return nil
}

// DetachDoctor stages clearing of the prescriber reference on a doctor's
// prescriptions. Medication history outlives the prescriber.
func (r *Repository) DetachDoctor(ctx context.Context, u *db.UnitOfWork, doctorID string) error {
	if !db.ValidUUID(doctorID) {
		return nil
	}
	if err := u.Exec(ctx, `UPDATE medications SET doctor_id = NULL WHERE doctor_id = $1`, doctorID); err != nil {
		return fmt.Errorf("medication: detach doctor: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.PatientID,
		&rec.DoctorID,
		&rec.Name,
		&rec.Dosage,
		&rec.Instructions,
		&rec.Status,
		&rec.PrescribedAt,
		&rec.DiscontinuedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
