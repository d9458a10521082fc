package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/canteen/internal/auth"
	"github.com/xenking/canteen/internal/domain/cart"
	"github.com/xenking/canteen/internal/domain/item"
	"github.com/xenking/canteen/internal/domain/order"
	"github.com/xenking/canteen/internal/domain/session"
	"github.com/xenking/canteen/internal/domain/user"
	"github.com/xenking/canteen/internal/report"
	"github.com/xenking/canteen/internal/storage/docrepo"
	"github.com/xenking/canteen/internal/storage/memory"
	"github.com/xenking/canteen/pkg/httpmiddleware"
)

// --- Mock implementations ---

type recordingFeed struct {
	served []*auth.Identity
}

func (f *recordingFeed) Serve(w http.ResponseWriter, _ *http.Request, id *auth.Identity) {
	f.served = append(f.served, id)
	w.WriteHeader(http.StatusOK)
}

type failingCatalog struct {
	err error
}

func (c failingCatalog) List(context.Context) ([]item.Item, error) {
	return nil, errors.Wrap(c.err, "fetch items")
}

func (c failingCatalog) Add(context.Context, item.Input) (*item.Item, error) {
	return nil, errors.Wrap(c.err, "add item")
}

func (c failingCatalog) Update(context.Context, string, item.Input) (*item.Item, error) {
	return nil, errors.Wrap(c.err, "update item")
}

func (c failingCatalog) Delete(context.Context, string) error {
	return errors.Wrap(c.err, "delete item")
}

// --- Fixture ---

type fixture struct {
	t       *testing.T
	handler http.Handler
	gate    *session.Gate
	feed    *recordingFeed
	admin   string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	g := memory.New()
	users := docrepo.NewUserRepository(g)
	gate := session.NewGate(users, bcrypt.MinCost)
	items := item.NewService(docrepo.NewItemRepository(g))
	orders := order.NewService(docrepo.NewOrderStore(g), users, docrepo.NewRepairStore(g))
	feed := &recordingFeed{}

	h := New(cfg, Deps{
		Accounts: gate,
		Tokens:   auth.NewIssuer([]byte("test-secret"), time.Hour),
		Catalog:  items,
		Carts:    cart.NewService(cart.NewMemoryStore(), items, orders),
		Orders:   orders,
		Feed:     feed,
	})
	f := &fixture{t: t, handler: h.Routes(), gate: gate, feed: feed}

	_, err := gate.Register(context.Background(), session.RegisterRequest{
		Email:    "admin@canteen.test",
		Password: "admin-password",
		Username: "admin",
		Role:     user.RoleAdmin,
	})
	require.NoError(t, err)
	f.admin = f.signIn("admin@canteen.test", "admin-password", true)
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	f.t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) student(email string) string {
	f.t.Helper()

	w := f.do(http.MethodPost, "/api/auth/register", "",
		`{"email":"`+email+`","password":"student-password","username":"student"}`)
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[sessionResponse](f.t, w).Token
}

func (f *fixture) signIn(email, password string, admin bool) string {
	f.t.Helper()

	body, err := json.Marshal(signInRequest{Email: email, Password: password, Admin: admin})
	require.NoError(f.t, err)
	w := f.do(http.MethodPost, "/api/auth/sign-in", "", string(body))
	require.Equal(f.t, http.StatusOK, w.Code, w.Body.String())
	return decode[sessionResponse](f.t, w).Token
}

func (f *fixture) addItem(name string, stock int, price string) itemResponse {
	f.t.Helper()

	body := `{"itemName":"` + name + `","stock":` + jsonInt(stock) + `,"price":"` + price + `"}`
	w := f.do(http.MethodPost, "/api/admin/items", f.admin, body)
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[itemResponse](f.t, w)
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()

	require.Equal(t, status, w.Code, w.Body.String())
	body := decode[httpmiddleware.ErrorBody](t, w)
	assert.Equal(t, status, body.Code)
	assert.Equal(t, msg, body.Message)
}

// --- Tests ---

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{})
	token := f.student("Ann@Canteen.test")

	t.Run("Me", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/me", token, "")
		require.Equal(t, http.StatusOK, w.Code)
		me := decode[userResponse](t, w)
		assert.Equal(t, "ann@canteen.test", me.Email)
		assert.False(t, me.Admin)
	})
	t.Run("Duplicate", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/auth/register", "",
			`{"email":"ann@canteen.test","password":"another-password","username":"ann"}`)
		requireError(t, w, http.StatusConflict, "create account: user already exists")
	})
	t.Run("InvalidEmail", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/auth/register", "",
			`{"email":"not-an-email","password":"long-enough","username":"x"}`)
		requireError(t, w, http.StatusBadRequest, "email must be a valid email address")
	})
	t.Run("ShortPassword", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/auth/register", "",
			`{"email":"bob@canteen.test","password":"short","username":"bob"}`)
		requireError(t, w, http.StatusBadRequest, "password must be at least 8 characters")
	})
	t.Run("AdminSignupDisabled", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/auth/register", "",
			`{"email":"eve@canteen.test","password":"long-enough","username":"eve","role":"admin"}`)
		requireError(t, w, http.StatusForbidden, "admin accounts cannot be created through sign-up")
	})
	t.Run("MalformedBody", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/auth/sign-in", "", `{"email":`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("WrongPassword", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/auth/sign-in", "",
			`{"email":"ann@canteen.test","password":"wrong-password","admin":false}`)
		requireError(t, w, http.StatusUnauthorized, "incorrect password")
	})
	t.Run("UnknownEmail", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/auth/sign-in", "",
			`{"email":"nobody@canteen.test","password":"whatever","admin":false}`)
		requireError(t, w, http.StatusUnauthorized, "no account with this email")
	})
	t.Run("StudentAsAdmin", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/auth/sign-in", "",
			`{"email":"ann@canteen.test","password":"student-password","admin":true}`)
		requireError(t, w, http.StatusForbidden, "you cannot log in as an admin with student credentials")
	})
	t.Run("AdminAsStudent", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/auth/sign-in", "",
			`{"email":"admin@canteen.test","password":"admin-password","admin":false}`)
		requireError(t, w, http.StatusForbidden, "you cannot log in as a student with admin credentials")
	})
	t.Run("MissingToken", func(t *testing.T) {
		requireError(t, f.do(http.MethodGet, "/api/items", "", ""), http.StatusUnauthorized, "missing bearer token")
	})
	t.Run("ForgedToken", func(t *testing.T) {
		requireError(t, f.do(http.MethodGet, "/api/items", "not.a.token", ""), http.StatusUnauthorized, "invalid token")
	})
}

func TestAuth_AdminSignupAllowed(t *testing.T) {
	f := newFixture(t, Config{AllowAdminSignup: true})

	w := f.do(http.MethodPost, "/api/auth/register", "",
		`{"email":"chef@canteen.test","password":"long-enough","username":"chef","role":"admin"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, decode[sessionResponse](t, w).User.Admin)
}

func TestAuth_SignInRateLimit(t *testing.T) {
	f := newFixture(t, Config{
		SignInLimit: httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{Max: 2, Window: time.Hour}),
	})

	// The fixture already spent one attempt signing the admin in.
	w := f.do(http.MethodPost, "/api/auth/sign-in", "", `{"email":"x@canteen.test","password":"p"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/auth/sign-in", "", `{"email":"x@canteen.test","password":"p"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRoleGates(t *testing.T) {
	f := newFixture(t, Config{})
	student := f.student("ann@canteen.test")

	requireError(t, f.do(http.MethodGet, "/api/admin/orders", student, ""), http.StatusForbidden, "admin access required")
	requireError(t, f.do(http.MethodGet, "/api/cart", f.admin, ""), http.StatusForbidden, "only students have a cart")
	requireError(t, f.do(http.MethodGet, "/api/nowhere", student, ""), http.StatusNotFound, "route not found")
}

func TestItems(t *testing.T) {
	f := newFixture(t, Config{})
	student := f.student("ann@canteen.test")

	created := f.addItem("Samosa", 10, "12.50")
	assert.Equal(t, "Samosa", created.ItemName)
	assert.Equal(t, 10, created.Stock)
	assert.InDelta(t, 12.5, created.Price, 1e-9)

	t.Run("NumericFields", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/admin/items", f.admin, `{"itemName":"Tea","stock":"40","price":8}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		tea := decode[itemResponse](t, w)
		assert.Equal(t, 40, tea.Stock)
		assert.InDelta(t, 8.0, tea.Price, 1e-9)
	})
	t.Run("InvalidPrice", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/admin/items", f.admin, `{"itemName":"Tea","stock":1,"price":"abc"}`)
		requireError(t, w, http.StatusBadRequest, "Price must be a valid number")
	})
	t.Run("InvalidStock", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/admin/items", f.admin, `{"itemName":"Tea","stock":"many","price":1}`)
		requireError(t, w, http.StatusBadRequest, "Quantity must be a valid number")
	})
	t.Run("MissingName", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/admin/items", f.admin, `{"stock":1,"price":1}`)
		requireError(t, w, http.StatusBadRequest, "Item name is required")
	})
	t.Run("StudentCannotAdd", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/admin/items", student, `{"itemName":"Tea","stock":1,"price":1}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
	t.Run("Update", func(t *testing.T) {
		w := f.do(http.MethodPut, "/api/admin/items/"+created.ItemID, f.admin,
			`{"itemName":"Samosa (2 pcs)","stock":8,"price":"15"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Samosa (2 pcs)", decode[itemResponse](t, w).ItemName)
	})
	t.Run("UpdateMissing", func(t *testing.T) {
		w := f.do(http.MethodPut, "/api/admin/items/missing", f.admin, `{"itemName":"X","stock":1,"price":1}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
	t.Run("List", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/items", student, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]itemResponse](t, w), 2)
	})
	t.Run("Export", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/admin/items/export", f.admin, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, report.ContentType, w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "items.xlsx")

		wb, err := xlsx.OpenBinary(w.Body.Bytes())
		require.NoError(t, err)
		assert.Len(t, wb.Sheet["Items"].Rows, 3)
	})
	t.Run("Delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/admin/items/"+created.ItemID, f.admin, "").Code)
		assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/admin/items/"+created.ItemID, f.admin, "").Code)
	})
}

func TestCartCheckoutAndLifecycle(t *testing.T) {
	f := newFixture(t, Config{})
	student := f.student("ann@canteen.test")
	samosa := f.addItem("Samosa", 2, "12.50")
	tea := f.addItem("Tea", 5, "8")

	add := func(id string) *httptest.ResponseRecorder {
		return f.do(http.MethodPost, "/api/cart/items/"+id, student, "")
	}
	require.Equal(t, http.StatusOK, add(samosa.ItemID).Code)
	require.Equal(t, http.StatusOK, add(samosa.ItemID).Code)
	require.Equal(t, http.StatusOK, add(tea.ItemID).Code)

	w := add(samosa.ItemID)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	assert.Equal(t, http.StatusNotFound, add("missing").Code)

	w = f.do(http.MethodGet, "/api/cart", student, "")
	require.Equal(t, http.StatusOK, w.Code)
	c := decode[cartResponse](t, w)
	if diff := cmp.Diff(cartResponse{
		Items: []cartLineResponse{
			{ItemID: samosa.ItemID, ItemName: "Samosa", Price: 12.5, Quantity: 2, Stock: 2, Total: 25},
			{ItemID: tea.ItemID, ItemName: "Tea", Price: 8, Quantity: 1, Stock: 5, Total: 8},
		},
		Total: 33,
	}, c); diff != "" {
		t.Fatalf("cart mismatch (-want +got):\n%s", diff)
	}

	w = f.do(http.MethodDelete, "/api/cart/items/"+tea.ItemID, student, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 25.0, decode[cartResponse](t, w).Total, 1e-9)
	requireError(t, f.do(http.MethodDelete, "/api/cart/items/"+tea.ItemID, student, ""),
		http.StatusNotFound, "remove from cart: item is not in the cart")

	w = f.do(http.MethodPost, "/api/cart/checkout", student, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decode[orderResponse](t, w)
	assert.Equal(t, order.StatusReceived, placed.Status)
	assert.InDelta(t, 25.0, placed.TotalAmount, 1e-9)
	require.Len(t, placed.Items, 1)
	assert.Equal(t, 2, placed.Items[0].Quantity)

	w = f.do(http.MethodGet, "/api/cart", student, "")
	assert.Empty(t, decode[cartResponse](t, w).Items)
	requireError(t, f.do(http.MethodPost, "/api/cart/checkout", student, ""),
		http.StatusBadRequest, "checkout: cart is empty")

	w = f.do(http.MethodGet, "/api/orders", student, "")
	require.Equal(t, http.StatusOK, w.Code)
	own := decode[[]orderResponse](t, w)
	require.Len(t, own, 1)
	assert.Nil(t, own[0].User)

	w = f.do(http.MethodGet, "/api/admin/orders", f.admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[[]orderResponse](t, w)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].User)
	assert.Equal(t, "ann@canteen.test", all[0].User.Email)

	w = f.do(http.MethodPost, "/api/admin/orders/"+placed.OrderID+"/advance", f.admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, order.StatusPrepared, decode[orderResponse](t, w).Status)

	requireError(t, f.do(http.MethodDelete, "/api/orders/"+placed.OrderID, student, ""),
		http.StatusConflict, "cancel order: status is Prepared: only received orders can be cancelled")

	w = f.do(http.MethodPut, "/api/admin/orders/"+placed.OrderID+"/status", f.admin, `{"status":"Picked"}`)
	require.Equal(t, http.StatusOK, w.Code)
	requireError(t, f.do(http.MethodPost, "/api/admin/orders/"+placed.OrderID+"/advance", f.admin, ""),
		http.StatusConflict, "advance order status: order is already picked")

	w = f.do(http.MethodPut, "/api/admin/orders/"+placed.OrderID+"/status", f.admin, `{"status":"Eaten"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/admin/orders/summary", f.admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[summaryResponse](t, w)
	assert.Equal(t, 1, sum.Orders)
	assert.InDelta(t, 25.0, sum.Revenue, 1e-9)
	require.Len(t, sum.ByStatus, 3)
	assert.Equal(t, order.StatusPicked, sum.ByStatus[2].Status)
	assert.Equal(t, 1, sum.ByStatus[2].Orders)

	w = f.do(http.MethodGet, "/api/admin/orders/export", f.admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	wb, err := xlsx.OpenBinary(w.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, wb.Sheet["Orders"].Rows, 2)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, Config{})
	ann := f.student("ann@canteen.test")
	bob := f.student("bob@canteen.test")
	tea := f.addItem("Tea", 5, "8")

	checkout := func(token string) string {
		require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/cart/items/"+tea.ItemID, token, "").Code)
		w := f.do(http.MethodPost, "/api/cart/checkout", token, "")
		require.Equal(t, http.StatusCreated, w.Code)
		return decode[orderResponse](t, w).OrderID
	}

	id := checkout(ann)
	requireError(t, f.do(http.MethodDelete, "/api/orders/"+id, bob, ""),
		http.StatusForbidden, "order belongs to another user")
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/orders/"+id, ann, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/orders/"+id, ann, "").Code)

	id = checkout(bob)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/orders/"+id, f.admin, "").Code)

	w := f.do(http.MethodGet, "/api/admin/orders", f.admin, "")
	assert.Empty(t, decode[[]orderResponse](t, w))
}

func TestRepairs(t *testing.T) {
	f := newFixture(t, Config{})

	w := f.do(http.MethodGet, "/api/admin/repairs", f.admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]repairResponse](t, w))

	requireError(t, f.do(http.MethodPost, "/api/admin/repairs/missing/retry", f.admin, ""),
		http.StatusNotFound, "retry repair: repair not found")
}

func TestFeed_QueryToken(t *testing.T) {
	f := newFixture(t, Config{})
	student := f.student("ann@canteen.test")

	w := f.do(http.MethodGet, "/api/orders/feed?token="+student, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.feed.served, 1)
	assert.False(t, f.feed.served[0].Admin)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/orders/feed", "", "").Code)

	// Query tokens are only honoured on the feed.
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/items?token="+student, "", "").Code)
}

func TestBackendErrors(t *testing.T) {
	f := newFixture(t, Config{})
	h := New(Config{}, Deps{
		Tokens:  auth.NewIssuer([]byte("test-secret"), time.Hour),
		Catalog: failingCatalog{err: errors.New("connection refused")},
	})
	routes := h.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
	req.Header.Set("Authorization", "Bearer "+f.admin)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	requireError(t, w, http.StatusInternalServerError, "fetch items: connection refused")
}

func TestClassify(t *testing.T) {
	for _, tt := range []struct {
		err    error
		status int
	}{
		{errors.Wrap(order.ErrEmptyLines, "place order"), http.StatusBadRequest},
		{errors.Wrap(&order.InvalidStatusError{Value: "x"}, "update"), http.StatusBadRequest},
		{errors.Wrap(&order.InvalidLineError{ItemID: "a", Reason: "quantity must be positive"}, "place order"), http.StatusUnprocessableEntity},
		{errors.Wrap(&order.TotalMismatchError{}, "place order"), http.StatusUnprocessableEntity},
		{errors.Wrap(&cart.StockError{ItemName: "Tea"}, "add to cart"), http.StatusConflict},
		{errors.Wrap(user.ErrNotFound, "lookup"), http.StatusNotFound},
		{errors.Wrap(session.ErrMissingCredentials, "sign in"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
