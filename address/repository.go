package address

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"careflow/db"
)

// ErrNotFound signals the requested address does not exist. Callers treat it
// as a normal outcome, not a fault.
var ErrNotFound = errors.New("address: not found")

// Repository handles data access for addresses. Writes are staged in the
// caller's unit of work; reads go straight to the pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, line1, line2, city, province, postal_code, country, created_at, updated_at`

// Create stages a new address row in the unit of work.
func (r *Repository) Create(ctx context.Context, u *db.UnitOfWork, spec Spec) (Address, error) {
	if spec.Line1 == "" {
		return Address{}, fmt.Errorf("address: line1 required")
	}
	if spec.City == "" {
		return Address{}, fmt.Errorf("address: city required")
	}
	if spec.Country == "" {
		return Address{}, fmt.Errorf("address: country required")
	}

	const insertSQL = `
		INSERT INTO addresses (line1, line2, city, province, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + columns

	var line2 *string
	if spec.Line2 != "" {
		line2 = &spec.Line2
	}

	addr, err := scanAddress(u.Stage(ctx, insertSQL, spec.Line1, line2, spec.City, spec.Province, spec.PostalCode, spec.Country))
	if err != nil {
		return Address{}, fmt.Errorf("address: create: %w", err)
	}
	return addr, nil
}

// GetByID fetches an address by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Address, error) {
	if !db.ValidUUID(id) {
		return Address{}, ErrNotFound
	}

	const selectSQL = `SELECT ` + columns + ` FROM addresses WHERE id = $1`

	addr, err := scanAddress(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Address{}, ErrNotFound
		}
		return Address{}, fmt.Errorf("address: get by id: %w", err)
	}
	return addr, nil
}

// Delete stages removal of an address and returns the deleted row. A missing
// id returns ErrNotFound.
func (r *Repository) Delete(ctx context.Context, u *db.UnitOfWork, id string) (Address, error) {
	if !db.ValidUUID(id) {
		return Address{}, ErrNotFound
	}

	const deleteSQL = `DELETE FROM addresses WHERE id = $1 RETURNING ` + columns

	addr, err := scanAddress(u.Stage(ctx, deleteSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Address{}, ErrNotFound
		}
		return Address{}, fmt.Errorf("address: delete: %w", err)
	}
	return addr, nil
}

func scanAddress(row pgx.Row) (Address, error) {
	var addr Address
	err := row.Scan(
		&addr.ID,
		&addr.Line1,
		&addr.Line2,
		&addr.City,
		&addr.Province,
		&addr.PostalCode,
		&addr.Country,
		&addr.CreatedAt,
		&addr.UpdatedAt,
	)
	if err != nil {
		return Address{}, err
	}
	return addr, nil
}
