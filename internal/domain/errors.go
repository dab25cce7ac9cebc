package domain

import "errors"

// Plan lifecycle and reconciliation errors.
var (
	// ErrInvalidPlanConfiguration is returned when a plan is created with a
	// non-positive amount, an interval below the protocol minimum, or bad keys.
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")

	// ErrChronologyViolation means LastCompletedSwapTimestamp is not aligned to a
	// checkpoint. It indicates ledger corruption and is never corrected silently.
	ErrChronologyViolation = errors.New("chronology violation")

	// ErrStaleExecutionAttempt is returned when a swap is submitted for a
	// checkpoint that is no longer due. Callers treat it as "already handled".
	ErrStaleExecutionAttempt = errors.New("stale execution attempt")

	// ErrInsufficientBalance means the vault cannot cover the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSwapPending is returned when closing a plan whose current window is due.
	ErrSwapPending = errors.New("swap pending for current window")

	// ErrInvalidAmount is returned for zero deposit or withdraw amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)
