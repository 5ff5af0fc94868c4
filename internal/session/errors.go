package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTenantID is returned when a tenant ID is empty or unsafe.
	ErrInvalidTenantID = errors.New("session: invalid tenant id")

	// ErrCreationFailed is returned by Initialize when the engine could not
	// create a connection. The session is left in StateError.
	ErrCreationFailed = errors.New("session: creation failed")

	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("session: controller closed")
)

// TeardownError records a failed engine teardown. Teardown failures are
// logged and never returned to callers.
type TeardownError struct {
	TenantID string
	Reason   string
	Err      error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown of %s session (%s): %v", e.TenantID, e.Reason, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}
