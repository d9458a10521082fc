package docrepo

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/canteen/internal/domain/order"
	"github.com/xenking/canteen/internal/storage/docstore"
)

var (
	_ order.Store      = (*OrderStore)(nil)
	_ order.Transactor = (*OrderTransactor)(nil)
)

// OrderStore keeps orders in the Orders collection keyed by orderID and
// their lines in OrderItems, linked by orderId.
type OrderStore struct {
	g docstore.Gateway
}

// NewOrderStore returns an OrderStore over g.
func NewOrderStore(g docstore.Gateway) *OrderStore {
	return &OrderStore{g: g}
}

func (s *OrderStore) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := s.g.Create(ctx, docstore.Orders, o.ID, encodeOrder(o))
	return translate(err, "create order %s", o.ID)
}

func (s *OrderStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	doc, err := s.g.Get(ctx, docstore.Orders, id)
	if err != nil {
		return nil, translate(err, "get order %s", id)
	}
	return decodeOrder(doc)
}

func (s *OrderStore) ListOrders(ctx context.Context, userID string) ([]order.Order, error) {
	var filters []docstore.Filter
	if userID != "" {
		filters = append(filters, docstore.Eq("userId", userID))
	}
	docs, err := s.g.List(ctx, docstore.Orders, filters...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orders := make([]order.Order, 0, len(docs))
	for i := range docs {
		o, err := decodeOrder(&docs[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	doc, err := s.g.Update(ctx, docstore.Orders, id, docstore.Fields{"status": string(status)})
	if err != nil {
		return nil, translate(err, "update order %s", id)
	}
	return decodeOrder(doc)
}

func (s *OrderStore) DeleteOrder(ctx context.Context, id string) error {
	return translate(s.g.Delete(ctx, docstore.Orders, id), "delete order %s", id)
}

func (s *OrderStore) CreateItem(ctx context.Context, it *order.OrderItem) error {
	_, err := s.g.Create(ctx, docstore.OrderItems, it.ID, encodeOrderItem(it))
	return translate(err, "create order item %s", it.ID)
}

func (s *OrderStore) ListItems(ctx context.Context, orderID string) ([]order.OrderItem, error) {
	docs, err := s.g.List(ctx, docstore.OrderItems, docstore.Eq("orderId", orderID))
	if err != nil {
		return nil, errors.Wrapf(err, "list items of order %s", orderID)
	}
	items := make([]order.OrderItem, 0, len(docs))
	for i := range docs {
		it, err := decodeOrderItem(&docs[i])
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, nil
}

func (s *OrderStore) DeleteItem(ctx context.Context, id string) error {
	return translate(s.g.Delete(ctx, docstore.OrderItems, id), "delete order item %s", id)
}

// Totals uses the gateway's aggregate when it has one and otherwise sums
// the listed orders.
func (s *OrderStore) Totals(ctx context.Context, status order.Status) (decimal.Decimal, int, error) {
	filter := docstore.Eq("status", string(status))
	if agg, ok := s.g.(docstore.Aggregator); ok {
		sum, n, err := agg.Sum(ctx, docstore.Orders, "totalAmount", filter)
		if err != nil {
			return decimal.Zero, 0, errors.Wrap(err, "sum orders")
		}
		return sum, n, nil
	}

	docs, err := s.g.List(ctx, docstore.Orders, filter)
	if err != nil {
		return decimal.Zero, 0, errors.Wrap(err, "list orders")
	}
	sum := decimal.Zero
	for i := range docs {
		o, err := decodeOrder(&docs[i])
		if err != nil {
			return decimal.Zero, 0, err
		}
		sum = sum.Add(o.TotalAmount)
	}
	return sum, len(docs), nil
}

// OrderTransactor runs order writes inside a gateway transaction.
type OrderTransactor struct {
	t docstore.Transactor
}

// NewOrderTransactor returns an OrderTransactor over t.
func NewOrderTransactor(t docstore.Transactor) *OrderTransactor {
	return &OrderTransactor{t: t}
}

func (t *OrderTransactor) InTx(ctx context.Context, fn func(ctx context.Context, s order.Store) error) error {
	return t.t.InTx(ctx, func(ctx context.Context, g docstore.Gateway) error {
		return fn(ctx, NewOrderStore(g))
	})
}

// translate maps gateway sentinels to order sentinels and wraps the rest.
func translate(err error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return errors.Wrapf(order.ErrNotFound, format, args...)
	case errors.Is(err, docstore.ErrConflict):
		return errors.Wrapf(order.ErrAlreadyExists, format, args...)
	default:
		return errors.Wrapf(err, format, args...)
	}
}

func encodeOrder(o *order.Order) docstore.Fields {
	return docstore.Fields{
		"orderID":     o.ID,
		"userId":      o.UserID,
		"totalAmount": money(o.TotalAmount),
		"orderDate":   timestamp(o.OrderDate),
		"status":      string(o.Status),
	}
}

func decodeOrder(doc *docstore.Document) (*order.Order, error) {
	r := newReader(doc)
	o := &order.Order{
		ID:          doc.ID,
		UserID:      r.string("userId"),
		TotalAmount: r.decimal("totalAmount"),
		OrderDate:   r.time("orderDate"),
		Status:      order.StatusReceived,
	}
	if raw := r.optString("status"); raw != "" {
		st, err := order.ParseStatus(raw)
		if err != nil {
			r.fail("status", err.Error())
		}
		o.Status = st
	}
	if r.err != nil {
		return nil, r.err
	}
	return o, nil
}

func encodeOrderItem(it *order.OrderItem) docstore.Fields {
	return docstore.Fields{
		"orderId":    it.OrderID,
		"itemId":     it.ItemID,
		"itemName":   it.ItemName,
		"quantity":   it.Quantity,
		"price":      money(it.Price),
		"totalPrice": money(it.TotalPrice),
	}
}

func decodeOrderItem(doc *docstore.Document) (*order.OrderItem, error) {
	r := newReader(doc)
	it := &order.OrderItem{
		ID:         doc.ID,
		OrderID:    r.string("orderId"),
		ItemID:     r.optString("itemId"),
		ItemName:   r.string("itemName"),
		Quantity:   r.int("quantity"),
		Price:      r.decimal("price"),
		TotalPrice: r.decimal("totalPrice"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return it, nil
}
