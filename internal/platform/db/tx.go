package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Serialization failures and deadlocks under RepeatableRead.
const (
	pgCodeSerializationFailure = "40001"
	pgCodeDeadlockDetected     = "40P01"
)

// WithTx executes fn within a RepeatableRead transaction. Stock movements
// read balances and write ledger rows in one unit, so anything weaker would
// let two shipments consume the same stock. When postgres aborts the
// transaction for serialization reasons the error is surfaced as
// shared.ErrConflict, which callers already treat as a safe-to-retry signal.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeSerializationFailure, pgCodeDeadlockDetected:
			return fmt.Errorf("%w: transaction aborted (%s)", shared.ErrConflict, pgErr.Code)
		}
	}
	return err
}
