package cache

import "errors"

var (
	// ErrAlreadyInProgress signals that another holder owns the lease.
	ErrAlreadyInProgress = errors.New("computation already in progress")

	// ErrLeaseTimeout signals that a waiter gave up on an in-flight
	// computation. Callers fall back to an independent run; this error is
	// never surfaced to the end caller.
	ErrLeaseTimeout = errors.New("timed out waiting for in-progress computation")
)

// IsLeaseTimeout reports whether err is a lease wait timeout.
func IsLeaseTimeout(err error) bool {
	return errors.Is(err, ErrLeaseTimeout)
}
