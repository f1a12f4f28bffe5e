package profit

import "errors"

var (
	// ErrNotFound is returned when no record exists for a plan identifier.
	ErrNotFound = errors.New("profit record not found")

	// ErrPlanIDRequired is returned when an upsert has an empty plan identifier.
	ErrPlanIDRequired = errors.New("planId is required")

	// ErrInvalidStartTime is returned when a start time does not fit in
	// int64 epoch milliseconds.
	ErrInvalidStartTime = errors.New("startTime out of range")
)

// IsNotFound reports whether err means the record is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrPlanIDRequired) ||
		errors.Is(err, ErrInvalidStartTime)
}
