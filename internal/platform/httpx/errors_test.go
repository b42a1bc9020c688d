package httpx

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		retryable bool
	}{
		{"not found", shared.NotFoundf("ticket 9"), 404, false},
		{"validation", shared.Validationf("quantity must be positive"), 400, false},
		{"lost race", fmt.Errorf("%w: ticket 9", shared.ErrConflict), 409, true},
		{"duplicate idempotency key", shared.ErrIdempotencyConflict, 409, false},
		{"insufficient stock", shared.ErrInsufficientStock, 422, false},
		{"inactive product", fmt.Errorf("%w: SP001", catalog.ErrProductInactive), 422, false},
		{"unknown", fmt.Errorf("boom"), 500, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.status, body.Status)
			require.Equal(t, tc.retryable, body.Retryable)
		})
	}
}

// A client retrying a direct export with the same Idempotency-Key must see a
// non-retryable conflict, never an internal error, because the first attempt
// already posted the stock movements.
func TestRespondErrorIdempotentRetryIsNotServerError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("check key: %w", shared.ErrIdempotencyConflict))
	require.Equal(t, 409, rec.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Retryable)
	require.Equal(t, "Duplicate Request", body.Title)
}
