package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/canteen/internal/domain/item"
	"github.com/xenking/canteen/internal/domain/order"
)

var (
	// ErrEmpty is returned when checking out an empty cart.
	ErrEmpty = errors.New("cart is empty")
	// ErrNotInCart is returned when removing an item the cart does not hold.
	ErrNotInCart = errors.New("item is not in the cart")
)

// StockError is returned when an item cannot be added because of its stock.
type StockError struct {
	ItemName string
	// InCart is set when the cart already holds every available unit.
	InCart bool
}

func (e *StockError) Error() string {
	if e.InCart {
		return fmt.Sprintf("cannot add more of %s: stock limit reached", e.ItemName)
	}
	return fmt.Sprintf("cannot add %s: stock is unavailable", e.ItemName)
}

// Catalog resolves items being added to a cart.
type Catalog interface {
	Get(ctx context.Context, id string) (*item.Item, error)
}

// Placer places orders from cart snapshots.
type Placer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
}

// Service applies cart operations on behalf of users. Operations on the
// same user's cart are serialized.
type Service struct {
	carts   Store
	catalog Catalog
	orders  Placer

	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a cart Service.
func NewService(carts Store, catalog Catalog, orders Placer) *Service {
	return &Service{
		carts:   carts,
		catalog: catalog,
		orders:  orders,
		locks:   make(map[string]*userLock),
	}
}

// lock serializes work on userID's cart and returns the unlock function.
func (s *Service) lock(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

// Get returns the user's cart.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.Load(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// Add puts one unit of itemID into the user's cart, capped at the item's
// current stock.
func (s *Service) Add(ctx context.Context, userID, itemID string) (*Cart, error) {
	it, err := s.catalog.Get(ctx, itemID)
	if err != nil {
		return nil, errors.Wrap(err, "add to cart")
	}

	unlock := s.lock(userID)
	defer unlock()

	c, err := s.carts.Load(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "add to cart")
	}
	if !c.AddOne(*it) {
		return nil, &StockError{ItemName: it.Name, InCart: c.Quantity(it.ID) > 0}
	}
	if err := s.carts.Save(ctx, userID, c); err != nil {
		return nil, errors.Wrap(err, "add to cart")
	}
	return c, nil
}

// Remove takes one unit of itemID out of the user's cart.
func (s *Service) Remove(ctx context.Context, userID, itemID string) (*Cart, error) {
	unlock := s.lock(userID)
	defer unlock()

	c, err := s.carts.Load(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "remove from cart")
	}
	if !c.RemoveOne(itemID) {
		return nil, errors.Wrap(ErrNotInCart, "remove from cart")
	}
	if err := s.carts.Save(ctx, userID, c); err != nil {
		return nil, errors.Wrap(err, "remove from cart")
	}
	return c, nil
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	unlock := s.lock(userID)
	defer unlock()

	if err := s.carts.Delete(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Checkout places an order from a snapshot of the user's cart. The cart is
// cleared only when the order was placed.
func (s *Service) Checkout(ctx context.Context, userID string) (*order.Order, error) {
	unlock := s.lock(userID)
	defer unlock()

	c, err := s.carts.Load(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "checkout")
	}
	if c.Len() == 0 {
		return nil, errors.Wrap(ErrEmpty, "checkout")
	}

	o, err := s.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:      userID,
		Lines:       c.OrderLines(),
		TotalAmount: c.Total(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "checkout")
	}

	// The order exists at this point; a stale cart is not worth failing it.
	if err := s.carts.Delete(ctx, userID); err != nil {
		zctx.From(ctx).Warn("Clear cart after checkout",
			zap.String("user_id", userID),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
	return o, nil
}
