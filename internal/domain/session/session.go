// Package session registers accounts and signs users in with a role check.
package session

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/canteen/internal/domain/user"
)

var (
	// ErrIncorrectPassword is returned when the password does not match.
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrMissingCredentials is returned when email or password is empty.
	ErrMissingCredentials = errors.New("email and password are required")
)

// RoleMismatchError is returned when the account's role differs from the
// role asserted at sign-in.
type RoleMismatchError struct {
	Admin bool
}

func (e *RoleMismatchError) Error() string {
	if e.Admin {
		return "you cannot log in as a student with admin credentials"
	}
	return "you cannot log in as an admin with student credentials"
}

// RegisterRequest holds the input for creating an account.
type RegisterRequest struct {
	Email    string
	Password string
	Username string
	Role     user.Role
}

// Gate creates accounts and verifies credentials.
type Gate struct {
	users user.Repository
	cost  int
}

// NewGate creates a Gate. A cost outside bcrypt's range falls back to
// bcrypt.DefaultCost.
func NewGate(users user.Repository, cost int) *Gate {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Gate{users: users, cost: cost}
}

// Register creates a user with a bcrypt-hashed password. Only RoleAdmin
// sets the admin flag.
func (g *Gate) Register(ctx context.Context, req RegisterRequest) (*user.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, errors.Wrap(ErrMissingCredentials, "create account")
	}

	_, err := g.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, errors.Wrap(user.ErrEmailTaken, "create account")
	case !errors.Is(err, user.ErrNotFound):
		return nil, errors.Wrap(err, "create account")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), g.cost)
	if err != nil {
		return nil, errors.Wrap(err, "create account: hash password")
	}

	u := &user.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: string(hash),
		Admin:        req.Role == user.RoleAdmin,
	}
	if err := g.users.Create(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create account")
	}
	return u, nil
}

// SignIn looks the user up by email, compares the password hash and checks
// that the admin flag matches asAdmin.
func (g *Gate) SignIn(ctx context.Context, email, password string, asAdmin bool) (*user.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, errors.Wrap(ErrMissingCredentials, "sign in")
	}

	u, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(err, "sign in")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errors.Wrap(ErrIncorrectPassword, "sign in")
	}
	if u.Admin != asAdmin {
		return nil, errors.Wrap(&RoleMismatchError{Admin: u.Admin}, "sign in")
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
