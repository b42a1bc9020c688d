package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every engine module. Handlers map these onto
// HTTP problem responses; ErrConflict is the only class a caller is
// expected to retry transparently after re-reading state.
var (
	// ErrNotFound indicates an unknown ticket, product or warehouse.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input; not retryable as-is.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates the ticket is not in the required state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInsufficientStock indicates a failed stock-sufficiency check.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates a lost CAS race; safe to retry with fresh state.
	ErrConflict = errors.New("concurrent modification conflict")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}
