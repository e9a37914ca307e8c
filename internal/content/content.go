// Package content holds what artifact stores have in common.
package content

import "errors"

var (
	// ErrNotFound is returned when an artifact reference points to nothing.
	ErrNotFound = errors.New("not found")

	// ErrTooLarge is returned when a store refuses an artifact for its size.
	ErrTooLarge = errors.New("too large")
)
