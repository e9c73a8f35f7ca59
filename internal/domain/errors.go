package domain

import "errors"

// ErrNotFound is returned when no reading satisfies the provided filters.
var ErrNotFound = errors.New("reading not found")
