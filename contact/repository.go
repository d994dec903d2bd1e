package contact

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"careflow/db"
)

// ErrNotFound signals the requested contact does not exist. Callers treat it
// as a normal outcome, not a fault.
var ErrNotFound = errors.New("contact: not found")

// Repository handles data access for contacts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, phone, alt_phone, email, created_at, updated_at`

// Create stages a new contact row in the unit of work.
func (r *Repository) Create(ctx context.Context, u *db.UnitOfWork, spec Spec) (Contact, error) {
	if spec.Phone == "" {
		return Contact{}, fmt.Errorf("contact: phone required")
	}
	if spec.Email == "" {
		return Contact{}, fmt.Errorf("contact: email required")
	}

	const insertSQL = `
		INSERT INTO contacts (phone, alt_phone, email)
		VALUES ($1, $2, $3)
		RETURNING ` + columns

	var altPhone *string
	if spec.AltPhone != "" {
		altPhone = &spec.AltPhone
	}

	c, err := scanContact(u.Stage(ctx, insertSQL, spec.Phone, altPhone, spec.Email))
	if err != nil {
		return Contact{}, fmt.Errorf("contact: create: %w", err)
	}
	return c, nil
}

// GetByID fetches a contact by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Contact, error) {
	if !db.ValidUUID(id) {
		return Contact{}, ErrNotFound
	}

	const selectSQL = `SELECT ` + columns + ` FROM contacts WHERE id = $1`

	c, err := scanContact(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("contact: get by id: %w", err)
	}
	return c, nil
}

// Delete stages removal of a contact and returns the deleted row. A missing
// id returns ErrNotFound.
func (r *Repository) Delete(ctx context.Context, u *db.UnitOfWork, id string) (Contact, error) {
	if !db.ValidUUID(id) {
		return Contact{}, ErrNotFound
	}

	const deleteSQL = `DELETE FROM contacts WHERE id = $1 RETURNING ` + columns

	c, err := scanContact(u.Stage(ctx, deleteSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("contact: delete: %w", err)
	}
	return c, nil
}

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(
		&c.ID,
		&c.Phone,
		&c.AltPhone,
		&c.Email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}
