package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRate indicates a missing or non-positive rate per liter.
	ErrInvalidRate = errors.New("rate must be a positive number")
)
