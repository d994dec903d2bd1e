package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrUnitReleased signals that the unit of work was already committed or
// rolled back.
var ErrUnitReleased = errors.New("db: unit of work already released")

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UnitOfWork scopes a group of staged domain-store writes to one explicit
// transaction handle. A unit is created per orchestration run, passed to
// every repository call that stages a write, and released on every exit
// path. Staged writes become visible together, exactly once, when Commit
// succeeds; Commit reports the total number of rows the staged writes
// touched.
type UnitOfWork struct {
	tx       pgx.Tx
	affected int64
	released bool
}

// BeginUnit opens a transaction on pool and wraps it in a UnitOfWork.
func BeginUnit(ctx context.Context, pool TxBeginner) (*UnitOfWork, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("db: begin unit of work: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Exec stages a write without a RETURNING clause and accumulates its
// affected row count.
func (u *UnitOfWork) Exec(ctx context.Context, sql string, args ...any) error {
	if u.released {
		return ErrUnitReleased
	}
	tag, err := u.tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	u.affected += tag.RowsAffected()
	return nil
}

// Stage issues a single-row write statement (INSERT/UPDATE/DELETE with
// RETURNING). The staged row counts toward the commit total once scanned.
func (u *UnitOfWork) Stage(ctx context.Context, sql string, args ...any) pgx.Row {
	return countingRow{row: u.tx.QueryRow(ctx, sql, args...), unit: u}
}

// QueryRow issues a read inside the unit's transaction. Reads do not count
// toward the affected row total.
func (u *UnitOfWork) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return u.tx.QueryRow(ctx, sql, args...)
}

// Query issues a multi-row read inside the unit's transaction.
func (u *UnitOfWork) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return u.tx.Query(ctx, sql, args...)
}

// Commit makes all staged writes visible atomically and returns the number
// of rows they affected.
func (u *UnitOfWork) Commit(ctx context.Context) (int64, error) {
	if u.released {
		return 0, ErrUnitReleased
	}
	if err := u.tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("db: commit unit of work: %w", err)
	}
	u.released = true
	return u.affected, nil
}

// Rollback discards all staged writes. Safe to defer alongside Commit:
// releasing an already-released unit is a no-op.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if u.released {
		return nil
	}
	u.released = true
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("db: rollback unit of work: %w", err)
	}
	return nil
}

type countingRow struct {
	row  pgx.Row
	unit *UnitOfWork
}

func (r countingRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return err
	}
	r.unit.affected++
	return nil
}
