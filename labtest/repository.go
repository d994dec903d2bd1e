package labtest

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
	// ErrNotFound signals the requested lab test does not exist.
	ErrNotFound = errors.New("labtest: not found")
	// ErrUnknownHospital signals the offering references a hospital that
	// does not exist.
	ErrUnknownHospital = errors.New("labtest: unknown hospital")
)

// Repository handles data access for hospital lab test offerings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, hospital_id, name, cost_cents, created_at, updated_at`

// Create inserts a new offering for a hospital.
func (r *Repository) Create(ctx context.Context, spec Spec) (Record, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return Record{}, fmt.Errorf("labtest: name required")
	}
	if spec.CostCents < 0 {
		return Record{}, fmt.Errorf("labtest: cost must not be negative")
	}

	const insertSQL = `
		INSERT INTO lab_tests (hospital_id, name, cost_cents)
		VALUES ($1, $2, $3)
		RETURNING ` + columns

	rec, err := scanRecord(r.pool.QueryRow(ctx, insertSQL, spec.HospitalID, spec.Name, spec.CostCents))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Record{}, ErrUnknownHospital
		}
		return Record{}, fmt.Errorf("labtest: create: %w", err)
	}
	return rec, nil
}

// GetByID fetches an offering by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Record, error) {
	if !db.ValidUUID(id) {
		return Record{}, ErrNotFound
	}

	const selectSQL = `SELECT ` + columns + ` FROM lab_tests WHERE id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("labtest: get by id: %w", err)
	}
	return rec, nil
}

// ListByHospital fetches a hospital's offerings ordered by name.
func (r *Repository) ListByHospital(ctx context.Context, hospitalID string) ([]Record, error) {
	if !db.ValidUUID(hospitalID) {
		return []Record{}, nil
	}

	const selectSQL = `SELECT ` + columns + ` FROM lab_tests WHERE hospital_id = $1 ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, selectSQL, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("labtest: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("labtest: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("labtest: iterate: %w", err)
	}
	return out, nil
}

// UpdateCost replaces the price on an existing offering.
func (r *Repository) UpdateCost(ctx context.Context, id string, costCents int64) (Record, error) {
	if costCents < 0 {
		return Record{}, fmt.Errorf("labtest: cost must not be negative")
	}
	if !db.ValidUUID(id) {
		return Record{}, ErrNotFound
	}

	const updateSQL = `
		UPDATE lab_tests SET cost_cents = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + columns

	rec, err := scanRecord(r.pool.QueryRow(ctx, updateSQL, id, costCents))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("labtest: update cost: %w", err)
	}
	return rec, nil
}

// Delete removes an offering. A missing id returns ErrNotFound.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if !db.ValidUUID(id) {
		return ErrNotFound
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM lab_tests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("labtest: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByHospital stages removal of every offering of a hospital in the
// caller's unit of work. Used when the hospital itself is deprovisioned.
func (r *Repository) DeleteByHospital(ctx context.Context, u *db.UnitOfWork, hospitalID string) error {
	if !db.ValidUUID(hospitalID) {
		return nil
	}
	if err := u.Exec(ctx, `DELETE FROM lab_tests WHERE hospital_id = $1`, hospitalID); err != nil {
		return fmt.Errorf("labtest: delete by hospital: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.HospitalID,
		&rec.Name,
		&rec.CostCents,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
