package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrCredentialNotFound signals that no credential exists for the lookup.
	ErrCredentialNotFound = errors.New("identity: credential not found")
	// ErrDuplicateLogin signals that the login identifier is already registered.
	ErrDuplicateLogin = errors.New("identity: login identifier already exists")
)

// Store handles data access against the identity store. The identity store
// is a separate system of record with its own connection pool; its writes
// never participate in a domain-store transaction.
type Store interface {
	CreateCredential(ctx context.Context, loginID, secretHash string) (Credential, error)
	AssignRole(ctx context.Context, credentialID string, role Role) error
	DeleteCredential(ctx context.Context, credentialID string) error
	FindByLoginID(ctx context.Context, loginID string) (Credential, error)
	GetByID(ctx context.Context, credentialID string) (Credential, error)
}

// PGStore implements Store backed by PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a PostgreSQL-backed credential store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const credentialColumns = `id, login_id, secret_hash, role, created_at, updated_at`

// CreateCredential inserts a new credential with a pre-hashed secret.
func (s *PGStore) CreateCredential(ctx context.Context, loginID, secretHash string) (Credential, error) {
	const insertSQL = `
		INSERT INTO credentials (login_id, secret_hash)
		VALUES ($1, $2)
		RETURNING ` + credentialColumns

	cred, err := scanCredential(s.pool.QueryRow(ctx, insertSQL, loginID, secretHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Credential{}, ErrDuplicateLogin
		}
		return Credential{}, fmt.Errorf("identity: create credential: %w", err)
	}

	return cred, nil
}

// AssignRole sets the role on an existing credential.
func (s *PGStore) AssignRole(ctx context.Context, credentialID string, role Role) error {
	const updateSQL = `
		UPDATE credentials
		SET role = $2, updated_at = now()
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, updateSQL, credentialID, role)
	if err != nil {
		return fmt.Errorf("identity: assign role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// DeleteCredential removes a credential by id.
func (s *PGStore) DeleteCredential(ctx context.Context, credentialID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, credentialID)
	if err != nil {
		return fmt.Errorf("identity: delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// FindByLoginID retrieves a credential by its login identifier.
func (s *PGStore) FindByLoginID(ctx context.Context, loginID string) (Credential, error) {
	const selectSQL = `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE login_id = $1
	`

	cred, err := scanCredential(s.pool.QueryRow(ctx, selectSQL, loginID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrCredentialNotFound
		}
		return Credential{}, fmt.Errorf("identity: find by login id: %w", err)
	}

	return cred, nil
}

// GetByID retrieves a credential by id.
func (s *PGStore) GetByID(ctx context.Context, credentialID string) (Credential, error) {
	const selectSQL = `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE id = $1
	`

	cred, err := scanCredential(s.pool.QueryRow(ctx, selectSQL, credentialID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrCredentialNotFound
		}
		return Credential{}, fmt.Errorf("identity: get by id: %w", err)
	}

	return cred, nil
}

func scanCredential(row pgx.Row) (Credential, error) {
	var cred Credential
	err := row.Scan(
		&cred.ID,
		&cred.LoginID,
		&cred.SecretHash,
		&cred.Role,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return Credential{}, err
	}
	return cred, nil
}
