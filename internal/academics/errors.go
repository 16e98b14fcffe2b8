package academics

import (
	"fmt"

	"coursehub.org/internal/auth"
)

var (
	ErrInvalidInput = auth.ErrInvalidInput
	ErrNotFound     = auth.ErrNotFound
	ErrConflict     = auth.ErrConflict

	// ErrReferenceNotFound reports a foreign key pointing at a missing row.
	ErrReferenceNotFound = fmt.Errorf("%w: referenced record does not exist", ErrConflict)
	// ErrHasDependents reports a delete refused because other rows reference the target.
	ErrHasDependents = fmt.Errorf("%w: record is still referenced", ErrConflict)
)

func missingRef(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrReferenceNotFound, kind, id)
}

func dependents(kind string, n int, what string) error {
	return fmt.Errorf("%w: %s has %d %s", ErrHasDependents, kind, n, what)
}
