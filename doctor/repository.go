package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"careflow/db"
)

// ErrNotFound signals the requested doctor does not exist. Update and Delete
// report it as a normal, expected outcome rather than a fault.
var ErrNotFound = errors.New("doctor: not found")

// Repository is the aggregate persistence gateway for doctors. Writes are
// staged in the caller's unit of work so the profile row and its children
// become visible together.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const rowColumns = `id, credential_id, first_name, last_name, license_number, address_id, contact_id, created_at, updated_at`

// Create stages the profile row. The id is supplied by the caller, not
// generated by the store.
func (r *Repository) Create(ctx context.Context, u *db.UnitOfWork, rec Record) (Record, error) {
	if rec.ID == "" {
		return Record{}, fmt.Errorf("doctor: id required")
	}
	if rec.FirstName == "" || rec.LastName == "" {
		return Record{}, fmt.Errorf("doctor: first and last name required")
	}

	const insertSQL = `
		INSERT INTO doctors (id, credential_id, first_name, last_name, license_number, address_id, contact_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + rowColumns

	created, err := scanRecord(u.Stage(ctx, insertSQL,
		rec.ID,
		rec.CredentialID,
		rec.FirstName,
		rec.LastName,
		rec.LicenseNumber,
		rec.AddressID,
		rec.ContactID,
	))
	if err != nil {
		return Record{}, fmt.Errorf("doctor: create: %w", err)
	}
	created.SpecializationIDs = rec.SpecializationIDs
	return created, nil
}

// GetByID fetches the profile row with its specialization links eagerly
// loaded.
func (r *Repository) GetByID(ctx context.Context, id string) (Record, error) {
	if !db.ValidUUID(id) {
		return Record{}, ErrNotFound
	}

	const selectSQL = `
		SELECT d.id, d.credential_id, d.first_name, d.last_name, d.license_number,
		       d.address_id, d.contact_id, d.created_at, d.updated_at,
		       COALESCE(array_agg(ds.specialization_id::text ORDER BY ds.specialization_id)
		                FILTER (WHERE ds.specialization_id IS NOT NULL), '{}')
		FROM doctors d
		LEFT JOIN doctor_specializations ds ON ds.doctor_id = d.id
		WHERE d.id = $1
		GROUP BY d.id
	`

	var rec Record
	err := r.pool.QueryRow(ctx, selectSQL, id).Scan(
		&rec.ID,
		&rec.CredentialID,
		&rec.FirstName,
		&rec.LastName,
		&rec.LicenseNumber,
		&rec.AddressID,
		&rec.ContactID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.SpecializationIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("doctor: get by id: %w", err)
	}
	return rec, nil
}

// Update stages a whole-row replace of the profile. Callers must supply the
// full record, not a partial patch. A missing id returns ErrNotFound.
func (r *Repository) Update(ctx context.Context, u *db.UnitOfWork, rec Record) (Record, error) {
	const updateSQL = `
		UPDATE doctors
		SET first_name = $2,
		    last_name = $3,
		    license_number = $4,
		    address_id = $5,
		    contact_id = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + rowColumns

	updated, err := scanRecord(u.Stage(ctx, updateSQL,
		rec.ID,
		rec.FirstName,
		rec.LastName,
		rec.LicenseNumber,
		rec.AddressID,
		rec.ContactID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("doctor: update: %w", err)
	}
	updated.SpecializationIDs = rec.SpecializationIDs
	return updated, nil
}

// Delete stages removal of the profile row and its specialization link rows,
// returning the deleted profile so the caller can read its foreign ids after
// removal. Catalog rows referenced by the links are never touched. A missing
// id returns ErrNotFound.
func (r *Repository) Delete(ctx context.Context, u *db.UnitOfWork, id string) (Record, error) {
	if !db.ValidUUID(id) {
		return Record{}, ErrNotFound
	}

	links, err := r.linkIDs(ctx, u, id)
	if err != nil {
		return Record{}, err
	}
	if err := u.Exec(ctx, `DELETE FROM doctor_specializations WHERE doctor_id = $1`, id); err != nil {
		return Record{}, fmt.Errorf("doctor: delete links: %w", err)
	}

	const deleteSQL = `DELETE FROM doctors WHERE id = $1 RETURNING ` + rowColumns

	rec, err := scanRecord(u.Stage(ctx, deleteSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("doctor: delete: %w", err)
	}
	rec.SpecializationIDs = links
	return rec, nil
}

// ReplaceSpecializationLinks stages a full replacement of the doctor's
// many-to-many link rows.
func (r *Repository) ReplaceSpecializationLinks(ctx context.Context, u *db.UnitOfWork, doctorID string, specializationIDs []string) error {
	if doctorID == "" {
		return fmt.Errorf("doctor: doctor id required")
	}

	if err := u.Exec(ctx, `DELETE FROM doctor_specializations WHERE doctor_id = $1`, doctorID); err != nil {
		return fmt.Errorf("doctor: clear links: %w", err)
	}
	for _, specID := range specializationIDs {
		if err := u.Exec(ctx, `INSERT INTO doctor_specializations (doctor_id, specialization_id) VALUES ($1, $2)`, doctorID, specID); err != nil {
			return fmt.Errorf("doctor: insert link %s: %w", specID, err)
		}
	}
	return nil
}

func (r *Repository) linkIDs(ctx context.Context, u *db.UnitOfWork, doctorID string) ([]string, error) {
	rows, err := u.Query(ctx, `SELECT specialization_id::text FROM doctor_specializations WHERE doctor_id = $1 ORDER BY specialization_id`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("doctor: load links: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("doctor: scan link: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("doctor: iterate links: %w", err)
	}
	return ids, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.CredentialID,
		&rec.FirstName,
		&rec.LastName,
		&rec.LicenseNumber,
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
