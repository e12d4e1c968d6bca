package wizard

import "errors"

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrValidation      = errors.New("validation failed")
	ErrNoActiveSession = errors.New("no active session")
	ErrStateMismatch   = errors.New("event does not match session state")
	ErrStorage         = errors.New("storage failure")
	ErrDuplicateCommit = errors.New("duplicate commit")
	// ErrUnavailable covers outages outside the commit path (session store,
	// participant directory, role checks).
	ErrUnavailable = errors.New("dependency unavailable")
)
