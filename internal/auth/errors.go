package auth

import (
	"errors"
	"fmt"

	"coursehub.org/internal/validation"
)

var (
	ErrInvalidInput = validation.ErrInvalid
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")

	// ErrInvalidCredentials is returned for both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", ErrConflict)

	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient role")
)
