// Package errtypes contains error types shared by the bento and model stores.
package errtypes

import "errors"

var (
	// ErrNotFound is returned when a store has no item under a requested tag.
	ErrNotFound = errors.New("not found")

	// ErrExists is returned when registering a tag that is already stored.
	ErrExists = errors.New("already exists")
)
