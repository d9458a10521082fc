package docrepo

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/canteen/internal/domain/user"
	"github.com/xenking/canteen/internal/storage/docstore"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository stores users in the Users collection keyed by userId.
type UserRepository struct {
	g docstore.Gateway
}

// NewUserRepository returns a UserRepository over g.
func NewUserRepository(g docstore.Gateway) *UserRepository {
	return &UserRepository{g: g}
}

// Create stores a new user. A duplicate email is reported as
// user.ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.g.Create(ctx, docstore.Users, u.ID, encodeUser(u))
	if errors.Is(err, docstore.ErrConflict) {
		return user.ErrEmailTaken
	}
	if err != nil {
		return errors.Wrapf(err, "create user %s", u.Email)
	}
	return nil
}

// GetByID returns the user whose userId is id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	doc, err := r.g.Get(ctx, docstore.Users, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get user %s", id)
	}
	return decodeUser(doc)
}

// GetByEmail returns the first user with the given email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	docs, err := r.g.List(ctx, docstore.Users, docstore.Eq("email", email))
	if err != nil {
		return nil, errors.Wrapf(err, "find user %s", email)
	}
	if len(docs) == 0 {
		return nil, user.ErrNotFound
	}
	return decodeUser(&docs[0])
}

func encodeUser(u *user.User) docstore.Fields {
	return docstore.Fields{
		"userId":   u.ID,
		"email":    u.Email,
		"username": u.Username,
		"password": u.PasswordHash,
		"admin":    u.Admin,
	}
}

func decodeUser(doc *docstore.Document) (*user.User, error) {
	r := newReader(doc)
	u := &user.User{
		ID:           doc.ID,
		Email:        r.string("email"),
		Username:     r.optString("username"),
		PasswordHash: r.string("password"),
		Admin:        r.bool("admin"),
	}
	if id := r.optString("userId"); id != "" {
		u.ID = id
	}
	if r.err != nil {
		return nil, r.err
	}
	return u, nil
}
