package user

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email that is already used.
	ErrEmailTaken = errors.New("user already exists")
)

// Role is the binary classification that gates available operations.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// User is an account. PasswordHash holds a bcrypt hash, never the password.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Admin        bool
}

// Role reports the user's role derived from the admin flag.
func (u *User) Role() Role {
	if u.Admin {
		return RoleAdmin
	}
	return RoleStudent
}

// Repository defines persistence operations for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	// GetByEmail matches the email exactly as stored.
	GetByEmail(ctx context.Context, email string) (*User, error)
}
