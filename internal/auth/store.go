package auth

import "context"

// UserStore is the credential store used by Service.
type UserStore interface {
	// CreateUser persists u. A duplicate email yields an error matching ErrConflict.
	CreateUser(ctx context.Context, u *User) error
	// FindUserByEmail expects an already normalized email and returns ErrNotFound when absent.
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUser(ctx context.Context, id string) (*User, error)
}
