package session

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/canteen/internal/domain/user"
)

// --- Mock implementations ---

type mockUsers struct {
	byEmail map[string]*user.User
	findErr error
}

func newMockUsers() *mockUsers {
	return &mockUsers{byEmail: make(map[string]*user.User)}
}

func (m *mockUsers) Create(_ context.Context, u *user.User) error {
	if _, ok := m.byEmail[u.Email]; ok {
		return user.ErrEmailTaken
	}
	m.byEmail[u.Email] = u
	return nil
}

func (m *mockUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *mockUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	u, ok := m.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

// --- Tests ---

func newGate(users user.Repository) *Gate {
	return NewGate(users, bcrypt.MinCost)
}

func TestRegister(t *testing.T) {
	users := newMockUsers()
	g := newGate(users)

	u, err := g.Register(context.Background(), RegisterRequest{
		Email:    " Asha@Example.com ",
		Password: "secret",
		Username: "asha",
		Role:     user.RoleStudent,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "asha@example.com", u.Email)
	assert.False(t, u.Admin)
	assert.NotEqual(t, "secret", u.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret")))

	admin, err := g.Register(context.Background(), RegisterRequest{
		Email: "chef@example.com", Password: "pw", Role: user.RoleAdmin,
	})
	require.NoError(t, err)
	assert.True(t, admin.Admin)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	users := newMockUsers()
	g := newGate(users)

	_, err := g.Register(context.Background(), RegisterRequest{Email: "a@example.com", Password: "x"})
	require.NoError(t, err)

	_, err = g.Register(context.Background(), RegisterRequest{Email: "A@example.com", Password: "y"})
	require.ErrorIs(t, err, user.ErrEmailTaken)
	assert.Len(t, users.byEmail, 1)
}

func TestRegister_MissingCredentials(t *testing.T) {
	_, err := newGate(newMockUsers()).Register(context.Background(), RegisterRequest{Email: "a@example.com"})
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestSignIn(t *testing.T) {
	users := newMockUsers()
	g := newGate(users)
	ctx := context.Background()

	_, err := g.Register(ctx, RegisterRequest{Email: "student@example.com", Password: "pw", Role: user.RoleStudent})
	require.NoError(t, err)
	_, err = g.Register(ctx, RegisterRequest{Email: "admin@example.com", Password: "pw", Role: user.RoleAdmin})
	require.NoError(t, err)

	tests := []struct {
		name    string
		email   string
		pass    string
		asAdmin bool
		check   func(t *testing.T, u *user.User, err error)
	}{
		{
			name: "student ok", email: "student@example.com", pass: "pw",
			check: func(t *testing.T, u *user.User, err error) {
				require.NoError(t, err)
				assert.Equal(t, user.RoleStudent, u.Role())
			},
		},
		{
			name: "admin ok", email: "ADMIN@example.com", pass: "pw", asAdmin: true,
			check: func(t *testing.T, u *user.User, err error) {
				require.NoError(t, err)
				assert.Equal(t, user.RoleAdmin, u.Role())
			},
		},
		{
			name: "unknown user", email: "nobody@example.com", pass: "pw",
			check: func(t *testing.T, _ *user.User, err error) {
				require.ErrorIs(t, err, user.ErrNotFound)
			},
		},
		{
			name: "wrong password", email: "student@example.com", pass: "nope",
			check: func(t *testing.T, _ *user.User, err error) {
				require.ErrorIs(t, err, ErrIncorrectPassword)
			},
		},
		{
			name: "student as admin", email: "student@example.com", pass: "pw", asAdmin: true,
			check: func(t *testing.T, _ *user.User, err error) {
				var rErr *RoleMismatchError
				require.ErrorAs(t, err, &rErr)
				assert.Equal(t, "you cannot log in as an admin with student credentials", rErr.Error())
			},
		},
		{
			name: "admin as student", email: "admin@example.com", pass: "pw",
			check: func(t *testing.T, _ *user.User, err error) {
				var rErr *RoleMismatchError
				require.ErrorAs(t, err, &rErr)
				assert.True(t, rErr.Admin)
				assert.Equal(t, "you cannot log in as a student with admin credentials", rErr.Error())
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := g.SignIn(ctx, tt.email, tt.pass, tt.asAdmin)
			tt.check(t, u, err)
		})
	}
}

func TestSignIn_BackendError(t *testing.T) {
	users := newMockUsers()
	users.findErr = errors.New("connection refused")

	_, err := newGate(users).SignIn(context.Background(), "a@example.com", "pw", false)
	require.Error(t, err)
	assert.Equal(t, "sign in: connection refused", err.Error())
}
