package domain

import "errors"

var (
	// ErrNotFound reports a reference to a donor, beneficiary, item,
	// contribution or line that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock reports a distribution quantity exceeding the
	// item's current stock. It is raised by the fail-fast validation pass
	// and again by the conditional decrement if a concurrent distribution
	// won the race in between.
	ErrInsufficientStock = errors.New("insufficient stock")
)
