package specialization

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
	// ErrNotFound signals the requested specialization does not exist.
	ErrNotFound = errors.New("specialization: not found")
	// ErrDuplicateName signals the catalog already holds this name.
	ErrDuplicateName = errors.New("specialization: name already exists")
)

// UnknownReferenceError reports which referenced catalog ids do not exist.
type UnknownReferenceError struct {
	IDs []string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("specialization: unknown ids: %s", strings.Join(e.IDs, ", "))
}

// Repository provides access to the specialization catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, name, description, created_at, updated_at`

// Create inserts a new catalog entry.
func (r *Repository) Create(ctx context.Context, params CreateParams) (Specialization, error) {
	if strings.TrimSpace(params.Name) == "" {
		return Specialization{}, fmt.Errorf("specialization: name required")
	}

	const insertSQL = `
		INSERT INTO specializations (name, description)
		VALUES ($1, $2)
		RETURNING ` + columns

	var description *string
	if params.Description != "" {
		description = &params.Description
	}

	spec, err := scanSpecialization(r.pool.QueryRow(ctx, insertSQL, params.Name, description))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Specialization{}, ErrDuplicateName
		}
		return Specialization{}, fmt.Errorf("specialization: create: %w", err)
	}
	return spec, nil
}

// GetByID fetches a catalog entry by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Specialization, error) {
	if !db.ValidUUID(id) {
		return Specialization{}, ErrNotFound
	}

	const selectSQL = `SELECT ` + columns + ` FROM specializations WHERE id = $1`

	spec, err := scanSpecialization(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Specialization{}, ErrNotFound
		}
		return Specialization{}, fmt.Errorf("specialization: get by id: %w", err)
	}
	return spec, nil
}

// List fetches up to limit catalog entries ordered by name.
func (r *Repository) List(ctx context.Context, limit int) ([]Specialization, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	const selectSQL = `SELECT ` + columns + ` FROM specializations ORDER BY name ASC LIMIT $1`

	rows, err := r.pool.Query(ctx, selectSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("specialization: list: %w", err)
	}
	defer rows.Close()

	out := make([]Specialization, 0, limit)
	for rows.Next() {
		spec, err := scanSpecialization(rows)
		if err != nil {
			return nil, fmt.Errorf("specialization: scan: %w", err)
		}
		out = append(out, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("specialization: iterate: %w", err)
	}
	return out, nil
}

// ValidateReferences resolves the given ids to their display names. If any
// id is unknown it returns an UnknownReferenceError naming every missing id
// and no partial map.
func (r *Repository) ValidateReferences(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	// Malformed ids can never resolve and would fail the uuid[] bind, so
	// only well-formed ones reach the query; the rest fall out as unknown.
	wellFormed := make([]string, 0, len(ids))
	for _, id := range ids {
		if db.ValidUUID(id) {
			wellFormed = append(wellFormed, id)
		}
	}

	resolved := make(map[string]string, len(ids))
	if len(wellFormed) > 0 {
		const selectSQL = `SELECT id, name FROM specializations WHERE id = ANY($1)`

		rows, err := r.pool.Query(ctx, selectSQL, wellFormed)
		if err != nil {
			return nil, fmt.Errorf("specialization: validate references: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id, name string
			if err := rows.Scan(&id, &name); err != nil {
				return nil, fmt.Errorf("specialization: scan reference: %w", err)
			}
			resolved[id] = name
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("specialization: iterate references: %w", err)
		}
	}

	var unknown []string
	for _, id := range ids {
		if _, ok := resolved[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, &UnknownReferenceError{IDs: unknown}
	}

	return resolved, nil
}

func scanSpecialization(row pgx.Row) (Specialization, error) {
	var spec Specialization
	err := row.Scan(
		&spec.ID,
		&spec.Name,
		&spec.Description,
		&spec.CreatedAt,
		&spec.UpdatedAt,
	)
	if err != nil {
		return Specialization{}, err
	}
	return spec, nil
}
