// Package handler exposes the canteen services over HTTP/JSON.
package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/canteen/internal/auth"
	"github.com/xenking/canteen/internal/domain/cart"
	"github.com/xenking/canteen/internal/domain/item"
	"github.com/xenking/canteen/internal/domain/order"
	"github.com/xenking/canteen/internal/domain/session"
	"github.com/xenking/canteen/internal/domain/user"
	"github.com/xenking/canteen/pkg/httpmiddleware"
)

// Accounts registers and signs in users.
type Accounts interface {
	Register(ctx context.Context, req session.RegisterRequest) (*user.User, error)
	SignIn(ctx context.Context, email, password string, asAdmin bool) (*user.User, error)
}

// Tokens issues and verifies bearer tokens.
type Tokens interface {
	Issue(u *user.User) (string, time.Time, error)
	Verify(token string) (*auth.Identity, error)
}

// Catalog manages items.
type Catalog interface {
	List(ctx context.Context) ([]item.Item, error)
	Add(ctx context.Context, in item.Input) (*item.Item, error)
	Update(ctx context.Context, id string, in item.Input) (*item.Item, error)
	Delete(ctx context.Context, id string) error
}

// Carts manages per-user carts.
type Carts interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	Add(ctx context.Context, userID, itemID string) (*cart.Cart, error)
	Remove(ctx context.Context, userID, itemID string) (*cart.Cart, error)
	Clear(ctx context.Context, userID string) error
	Checkout(ctx context.Context, userID string) (*order.Order, error)
}

// Orders drives the order lifecycle.
type Orders interface {
	FetchOrdersByUser(ctx context.Context, userID string) ([]order.Order, error)
	FetchAllOrders(ctx context.Context) ([]order.Order, error)
	CancelOrder(ctx context.Context, actor order.Actor, id string) error
	UpdateOrderStatus(ctx context.Context, id, status string) (*order.Order, error)
	AdvanceOrderStatus(ctx context.Context, id string) (*order.Order, error)
	Summary(ctx context.Context) (*order.Summary, error)
	ListRepairs(ctx context.Context) ([]order.Repair, error)
	RetryRepair(ctx context.Context, id string) error
}

// Feed streams order events over a WebSocket.
type Feed interface {
	Serve(w http.ResponseWriter, r *http.Request, id *auth.Identity)
}

// Config holds non-dependency settings.
type Config struct {
	// AllowAdminSignup lets POST /api/auth/register create admin accounts.
	AllowAdminSignup bool
	// SignInLimit throttles POST /api/auth/sign-in. Nil disables it.
	SignInLimit *httpmiddleware.RateLimiter
}

// Deps are the services behind the API.
type Deps struct {
	Accounts Accounts
	Tokens   Tokens
	Catalog  Catalog
	Carts    Carts
	Orders   Orders
	Feed     Feed
}

// Handler serves the /api routes.
type Handler struct {
	cfg      Config
	validate *validator.Validate

	accounts Accounts
	tokens   Tokens
	catalog  Catalog
	carts    Carts
	orders   Orders
	feed     Feed
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		cfg:      cfg,
		validate: validate,
		accounts: deps.Accounts,
		tokens:   deps.Tokens,
		catalog:  deps.Catalog,
		carts:    deps.Carts,
		orders:   deps.Orders,
		feed:     deps.Feed,
	}
}

// Routes returns the router for every /api endpoint.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.With(h.signInLimit()).Post("/auth/sign-in", h.signIn)

		// Browsers cannot set headers on a WebSocket handshake.
		r.With(h.authenticate(true)).Get("/orders/feed", h.serveFeed)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate(false))

			r.Get("/me", h.me)
			r.Get("/items", h.listItems)
			r.Get("/orders", h.listOwnOrders)
			r.Delete("/orders/{id}", h.cancelOrder)

			r.Route("/cart", func(r chi.Router) {
				r.Use(requireStudent)
				r.Get("/", h.getCart)
				r.Delete("/", h.clearCart)
				r.Post("/items/{id}", h.addToCart)
				r.Delete("/items/{id}", h.removeFromCart)
				r.Post("/checkout", h.checkout)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)

				r.Post("/items", h.addItem)
				r.Get("/items/export", h.exportItems)
				r.Put("/items/{id}", h.updateItem)
				r.Delete("/items/{id}", h.deleteItem)

				r.Get("/orders", h.listAllOrders)
				r.Get("/orders/export", h.exportOrders)
				r.Get("/orders/summary", h.summary)
				r.Put("/orders/{id}/status", h.updateStatus)
				r.Post("/orders/{id}/advance", h.advanceStatus)

				r.Get("/repairs", h.listRepairs)
				r.Post("/repairs/{id}/retry", h.retryRepair)
			})
		})
	})
	return r
}

func (h *Handler) signInLimit() func(http.Handler) http.Handler {
	if h.cfg.SignInLimit == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.cfg.SignInLimit.Middleware()
}
