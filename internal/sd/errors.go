package sd

import (
	"errors"
	"fmt"
)

// Sentinel errors for the semantic outcomes of SD calls. Callers select
// their handling with errors.Is; anything not in this taxonomy that still
// failed is a TransientError and heals on the next scheduled tick.
var (
	// ErrUnauthorized means the bearer token was rejected (401/403).
	// The caller skips the session for this cycle; the reauth worker
	// repairs the token on its own schedule.
	ErrUnauthorized = errors.New("sd: unauthorized")

	// ErrNotFound means the remote entity no longer exists (404).
	ErrNotFound = errors.New("sd: not found")

	// ErrConflict means the remote rejected a status update (409).
	ErrConflict = errors.New("sd: conflict")

	// ErrInvalidCredentials means authentication with stored credentials
	// failed. The session is frozen for sync until re-linked.
	ErrInvalidCredentials = errors.New("sd: invalid credentials")
)

// TransientError wraps network, timeout, and unexpected-status failures.
// Nothing retries these within a tick; the next scheduled run absorbs them.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("sd: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

func transientf(op, format string, args ...interface{}) error {
	return &TransientError{Op: op, Err: fmt.Errorf(format, args...)}
}
