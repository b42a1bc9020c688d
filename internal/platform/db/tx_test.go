package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

func TestClassifyMapsSerializationAbortToConflict(t *testing.T) {
	for _, code := range []string{pgCodeSerializationFailure, pgCodeDeadlockDetected} {
		err := classify(fmt.Errorf("append ledger: %w", &pgconn.PgError{Code: code}))
		require.ErrorIs(t, err, shared.ErrConflict, "code %s", code)
	}
}

func TestClassifyLeavesOtherErrorsAlone(t *testing.T) {
	uniqueViolation := &pgconn.PgError{Code: "23505"}
	require.ErrorIs(t, classify(fmt.Errorf("insert: %w", uniqueViolation)), uniqueViolation)

	plain := errors.New("no rows")
	require.Same(t, plain, classify(plain))
}
