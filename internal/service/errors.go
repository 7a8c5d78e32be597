package service

import "errors"

// Domain errors surfaced to handlers so they can set correct HTTP statuses.
var (
	ErrProgramNotFound      = errors.New("program not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrPlanNotFound         = errors.New("membership plan not found")

	// ErrProgramClosed means the program is outside its registration
	// window.
	ErrProgramClosed = errors.New("program is not open for registration")

	// ErrInvalidTransition means a check-in was attempted on a
	// registration that is neither REGISTERED nor CHECKED_IN.
	ErrInvalidTransition = errors.New("registration cannot be checked in from its current status")

	// ErrUnauthorized means the actor may not perform the operation.
	ErrUnauthorized = errors.New("not authorized")

	// ErrCapacityInconsistent signals a broken ledger invariant: more
	// seat-holding registrations than capacity. Never retried.
	ErrCapacityInconsistent = errors.New("capacity ledger is inconsistent")
)
