package qualification

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"careflow/db"
)

// Repository handles data access for doctor qualifications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, doctor_id, degree, institution, year, created_at`

// CreateForDoctor stages one qualification row per spec for the doctor.
func (r *Repository) CreateForDoctor(ctx context.Context, u *db.UnitOfWork, doctorID string, specs []Spec) ([]Qualification, error) {
	if doctorID == "" {
		return nil, fmt.Errorf("qualification: doctor id required")
	}

	const insertSQL = `
		INSERT INTO qualifications (doctor_id, degree, institution, year)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + columns

	out := make([]Qualification, 0, len(specs))
	for _, spec := range specs {
		if spec.Degree == "" {
			return nil, fmt.Errorf("qualification: degree required")
		}
		q, err := scanQualification(u.Stage(ctx, insertSQL, doctorID, spec.Degree, spec.Institution, spec.Year))
		if err != nil {
			return nil, fmt.Errorf("qualification: create: %w", err)
		}
		out = append(out, q)
	}
	return out, nil
}

// ListByDoctor fetches the qualifications owned by a doctor.
func (r *Repository) ListByDoctor(ctx context.Context, doctorID string) ([]Qualification, error) {
	if !db.ValidUUID(doctorID) {
		return []Qualification{}, nil
	}

	const selectSQL = `SELECT ` + columns + ` FROM qualifications WHERE doctor_id = $1 ORDER BY year ASC, degree ASC`

	rows, err := r.pool.Query(ctx, selectSQL, doctorID)
	if err != nil {
		return nil, fmt.Errorf("qualification: list by doctor: %w", err)
	}
	defer rows.Close()

	out := []Qualification{}
	for rows.Next() {
		q, err := scanQualification(rows)
		if err != nil {
			return nil, fmt.Errorf("qualification: scan: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("qualification: iterate: %w", err)
	}
	return out, nil
}

// DeleteByDoctor stages removal of every qualification owned by the doctor.
func (r *Repository) DeleteByDoctor(ctx context.Context, u *db.UnitOfWork, doctorID string) error {
	if !db.ValidUUID(doctorID) {
		return nil
	}
	if err := u.Exec(ctx, `DELETE FROM qualifications WHERE doctor_id = $1`, doctorID); err != nil {
		return fmt.Errorf("qualification: delete by doctor: %w", err)
	}
	return nil
}

func scanQualification(row pgx.Row) (Qualification, error) {
	var q Qualification
	err := row.Scan(
		&q.ID,
		&q.DoctorID,
		&q.Degree,
		&q.Institution,
		&q.Year,
		&q.CreatedAt,
	)
	if err != nil {
		return Qualification{}, err
	}
	return q, nil
}
