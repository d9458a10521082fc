package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/canteen/internal/auth"
	"github.com/xenking/canteen/internal/domain/session"
	"github.com/xenking/canteen/internal/domain/user"
)

const maxBody = 1 << 20

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=student admin"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Admin    bool   `json:"admin"`
}

type userResponse struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func toUser(u *user.User) userResponse {
	return userResponse{UserID: u.ID, Email: u.Email, Username: u.Username, Admin: u.Admin}
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Errorf("%w: %v", errBadRequest, err)
	}
	return h.validate.Struct(v)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	role := user.Role(req.Role)
	if role == "" {
		role = user.RoleStudent
	}
	if role == user.RoleAdmin && !h.cfg.AllowAdminSignup {
		writeError(w, http.StatusForbidden, "admin accounts cannot be created through sign-up")
		return
	}

	u, err := h.accounts.Register(r.Context(), session.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		Role:     role,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	h.issue(w, r, http.StatusCreated, u)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := h.decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	u, err := h.accounts.SignIn(r.Context(), req.Email, req.Password, req.Admin)
	if errors.Is(err, user.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "no account with this email")
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	h.issue(w, r, http.StatusOK, u)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, status int, u *user.User) {
	token, exp, err := h.tokens.Issue(u)
	if err != nil {
		fail(w, r, errors.Wrap(err, "issue token"))
		return
	}
	writeJSON(w, status, sessionResponse{Token: token, ExpiresAt: exp, User: toUser(u)})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	writeJSON(w, http.StatusOK, userResponse{
		UserID:   id.UserID,
		Email:    id.Email,
		Username: id.Username,
		Admin:    id.Admin,
	})
}

func (h *Handler) serveFeed(w http.ResponseWriter, r *http.Request) {
	h.feed.Serve(w, r, identity(r))
}

// authenticate requires a valid bearer token. With query set, the token may
// also come from the "token" query parameter.
func (h *Handler) authenticate(query bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r)
			if !ok && query {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			id, err := h.tokens.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// identity returns the caller set by authenticate.
func identity(r *http.Request) *auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identity(r).Admin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity(r).Admin {
			writeError(w, http.StatusForbidden, "only students have a cart")
			return
		}
		next.ServeHTTP(w, r)
	})
}
