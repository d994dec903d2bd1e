package hospital

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"careflow/db"
)

// ErrNotFound signals the requested hospital does not exist. Update and
// Delete report it as a normal, expected outcome rather than a fault.
var ErrNotFound = errors.New("hospital: not found")

// Repository is the aggregate persistence gateway for hospitals.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const rowColumns = `id, credential_id, name, registration_number, address_id, contact_id, created_at, updated_at`

// Create stages the profile row. The id is supplied by the caller.
func (r *Repository) Create(ctx context.Context, u *db.UnitOfWork, rec Record) (Record, error) {
	if rec.ID == "" {
		return Record{}, fmt.Errorf("hospital: id required")
	}
	if rec.Name == "" {
		return Record{}, fmt.Errorf("hospital: name required")
	}

	const insertSQL = `
		INSERT INTO hospitals (id, credential_id, name, registration_number, address_id, contact_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + rowColumns

	created, err := scanRecord(u.Stage(ctx, insertSQL,
		rec.ID,
		rec.CredentialID,
		rec.Name,
		rec.RegistrationNumber,
		rec.AddressID,
		rec.ContactID,
	))
	if err != nil {
		return Record{}, fmt.Errorf("hospital: create: %w", err)
	}
	return created, nil
}

// GetByID fetches the profile row.
func (r *Repository) GetByID(ctx context.Context, id string) (Record, error) {
	if !db.ValidUUID(id) {
		return Record{}, ErrNotFound
	}

	const selectSQL = `SELECT ` + rowColumns + ` FROM hospitals WHERE id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("hospital: get by id: %w", err)
	}
	return rec, nil
}

// Update stages a whole-row replace of the profile. Callers must supply the
// full record. A missing id returns ErrNotFound.
func (r *Repository) Update(ctx context.Context, u *db.UnitOfWork, rec Record) (Record, error) {
	const updateSQL = `
		UPDATE hospitals
		SET name = $2,
		    registration_number = $3,
		    address_id = $4,
		    contact_id = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + rowColumns

	updated, err := scanRecord(u.Stage(ctx, updateSQL,
		rec.ID,
		rec.Name,
		rec.RegistrationNumber,
		rec.AddressID,
		rec.ContactID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("hospital: update: %w", err)
	}
	return updated, nil
}

// Delete stages removal of the profile row, returning the deleted row so the
// caller can read its foreign ids after removal. A missing id returns
// ErrNotFound.
func (r *Repository) Delete(ctx context.Context, u *db.UnitOfWork, id string) (Record, error) {
	if !db.ValidUUID(id) {
		return Record{}, ErrNotFound
	}

	const deleteSQL = `DELETE FROM hospitals WHERE id = $1 RETURNING ` + rowColumns

	rec, err := scanRecord(u.Stage(ctx, deleteSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("hospital: delete: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.CredentialID,
		&rec.Name,
		&rec.RegistrationNumber,
		&rec.AddressID,
		&rec.ContactID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
