package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/canteen/internal/domain/user"
)

// joinConcurrency bounds the per-order lookups issued by the fetch operations.
const joinConcurrency = 16

// PlaceOrderRequest holds the input for placing an order. A zero
// TotalAmount is computed from the lines.
type PlaceOrderRequest struct {
	UserID      string
	Lines       []Line
	TotalAmount decimal.Decimal
}

// Option configures a Service.
type Option func(*Service)

// WithTransactor makes multi-document writes run inside one transaction
// instead of being unwound by compensation on failure.
func WithTransactor(tx Transactor) Option {
	return func(s *Service) { s.tx = tx }
}

// WithNotifier sets the receiver of lifecycle events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithTracerProvider sets the provider for operation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tp = tp }
}

// WithMeterProvider sets the provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.mp = mp }
}

// WithClock overrides the time source used for order dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the generator of document ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// Service implements the order lifecycle over Orders and OrderItems.
type Service struct {
	store    Store
	users    UserLookup
	repairs  RepairStore
	tx       Transactor
	notifier Notifier

	now   func() time.Time
	newID func() string

	tp      trace.TracerProvider
	mp      metric.MeterProvider
	tracer  trace.Tracer
	metrics metrics
}

// NewService creates an order Service.
func NewService(store Store, users UserLookup, repairs RepairStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		users:   users,
		repairs: repairs,
		now:     time.Now,
		newID:   uuid.NewString,
		tp:      tracenoop.NewTracerProvider(),
		mp:      noop.NewMeterProvider(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracer = s.tp.Tracer(instrumentationName)
	s.metrics = newMetrics(s.mp)
	return s
}

// PlaceOrder validates the lines, then persists the Order followed by one
// OrderItem per line.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() { finish(span, rerr) }()

	total, err := validateLines(req)
	if err != nil {
		return nil, errors.Wrap(err, "place order")
	}

	o := &Order{
		ID:          s.newID(),
		UserID:      req.UserID,
		TotalAmount: total,
		OrderDate:   s.now().UTC(),
		Status:      StatusReceived,
		Items:       make([]OrderItem, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		o.Items = append(o.Items, OrderItem{
			ID:         s.newID(),
			OrderID:    o.ID,
			ItemID:     l.ItemID,
			ItemName:   l.ItemName,
			Quantity:   l.Quantity,
			Price:      l.Price,
			TotalPrice: l.Total(),
		})
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.Int("order.lines", len(o.Items)))

	if s.tx != nil {
		err = s.tx.InTx(ctx, func(ctx context.Context, st Store) error {
			return writeOrder(ctx, st, o, nil)
		})
	} else {
		j := newJournal("place", o.ID)
		if err = writeOrder(ctx, s.store, o, j); err != nil {
			s.unwind(ctx, j)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "place order")
	}

	s.metrics.placed.Add(ctx, 1)
	s.notify(ctx, EventPlaced, o)
	return o, nil
}

func validateLines(req PlaceOrderRequest) (decimal.Decimal, error) {
	if req.UserID == "" {
		return decimal.Zero, ErrUserRequired
	}
	if len(req.Lines) == 0 {
		return decimal.Zero, ErrEmptyLines
	}

	total := decimal.Zero
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return decimal.Zero, &InvalidLineError{ItemID: l.ItemID, Reason: "quantity must be greater than 0"}
		}
		if l.Price.IsNegative() {
			return decimal.Zero, &InvalidLineError{ItemID: l.ItemID, Reason: "price must not be negative"}
		}
		total = total.Add(l.Total())
	}

	if !req.TotalAmount.IsZero() && !req.TotalAmount.Equal(total) {
		return decimal.Zero, &TotalMismatchError{Supplied: req.TotalAmount, Computed: total}
	}
	return total, nil
}

func writeOrder(ctx context.Context, st Store, o *Order, j *journal) error {
	if err := st.CreateOrder(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}
	j.record(Repair{Target: TargetOrder, Action: ActionDelete, DocumentID: o.ID})

	for i := range o.Items {
		it := &o.Items[i]
		if err := st.CreateItem(ctx, it); err != nil {
			return errors.Wrapf(err, "create order item %s", it.ItemID)
		}
		j.record(Repair{Target: TargetOrderItem, Action: ActionDelete, DocumentID: it.ID})
	}
	return nil
}

// FetchOrdersByUser returns the orders of userID joined with their lines.
func (s *Service) FetchOrdersByUser(ctx context.Context, userID string) (_ []Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.FetchOrdersByUser")
	defer func() { finish(span, rerr) }()

	orders, err := s.store.ListOrders(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "fetch orders")
	}
	if err := s.join(ctx, orders, false); err != nil {
		return nil, errors.Wrap(err, "fetch orders")
	}
	return orders, nil
}

// FetchAllOrders returns every order joined with its lines and owner.
func (s *Service) FetchAllOrders(ctx context.Context) (_ []Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.FetchAllOrders")
	defer func() { finish(span, rerr) }()

	orders, err := s.store.ListOrders(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "fetch orders")
	}
	if err := s.join(ctx, orders, true); err != nil {
		return nil, errors.Wrap(err, "fetch orders")
	}
	return orders, nil
}

// join fills Items, and User when withUsers is set, for every order
// concurrently. An owner that no longer exists leaves User nil.
func (s *Service) join(ctx context.Context, orders []Order, withUsers bool) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(joinConcurrency)

	for i := range orders {
		o := &orders[i]
		g.Go(func() error {
			items, err := s.store.ListItems(ctx, o.ID)
			if err != nil {
				return errors.Wrapf(err, "list items of order %s", o.ID)
			}
			o.Items = items

			if !withUsers || o.UserID == "" {
				return nil
			}
			u, err := s.users.GetByID(ctx, o.UserID)
			switch {
			case err == nil:
				o.User = u
			case errors.Is(err, user.ErrNotFound):
			default:
				return errors.Wrapf(err, "get owner of order %s", o.ID)
			}
			return nil
		})
	}
	return g.Wait()
}

// CancelOrder deletes a Received order and its lines. Only the owner or an
// admin may cancel; any other status is rejected before anything is deleted.
func (s *Service) CancelOrder(ctx context.Context, actor Actor, id string) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer func() { finish(span, rerr) }()

	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return errors.Wrap(err, "cancel order")
	}
	if !actor.Admin && o.UserID != actor.UserID {
		return errors.Wrap(ErrForbidden, "cancel order")
	}
	if o.Status != StatusReceived {
		return errors.Wrapf(ErrNotCancellable, "cancel order: status is %s", o.Status)
	}

	if s.tx != nil {
		err = s.tx.InTx(ctx, func(ctx context.Context, st Store) error {
			return deleteOrder(ctx, st, id, nil)
		})
	} else {
		j := newJournal("cancel", id)
		if err = deleteOrder(ctx, s.store, id, j); err != nil {
			s.unwind(ctx, j)
		}
	}
	if err != nil {
		return errors.Wrap(err, "cancel order")
	}

	s.metrics.cancelled.Add(ctx, 1)
	s.notify(ctx, EventCancelled, o)
	return nil
}

func deleteOrder(ctx context.Context, st Store, id string, j *journal) error {
	items, err := st.ListItems(ctx, id)
	if err != nil {
		return errors.Wrap(err, "list order items")
	}
	for i := range items {
		it := items[i]
		if err := st.DeleteItem(ctx, it.ID); err != nil {
			return errors.Wrapf(err, "delete order item %s", it.ID)
		}
		j.record(Repair{Target: TargetOrderItem, Action: ActionRestore, DocumentID: it.ID, Item: &it})
	}
	if err := st.DeleteOrder(ctx, id); err != nil {
		return errors.Wrap(err, "delete order")
	}
	return nil
}

// UpdateOrderStatus validates status against the enum and persists it
// without checking the transition.
func (s *Service) UpdateOrderStatus(ctx context.Context, id, status string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateOrderStatus", trace.WithAttributes(attribute.String("order.id", id)))
	defer func() { finish(span, rerr) }()

	st, err := ParseStatus(status)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return s.setStatus(ctx, id, st)
}

// AdvanceOrderStatus moves an order to the next stage. Picked orders are
// rejected with ErrTerminalStatus.
func (s *Service) AdvanceOrderStatus(ctx context.Context, id string) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.AdvanceOrderStatus", trace.WithAttributes(attribute.String("order.id", id)))
	defer func() { finish(span, rerr) }()

	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "advance order status")
	}
	next, ok := o.Status.Next()
	if !ok {
		return nil, errors.Wrap(ErrTerminalStatus, "advance order status")
	}
	return s.setStatus(ctx, id, next)
}

func (s *Service) setStatus(ctx context.Context, id string, st Status) (*Order, error) {
	o, err := s.store.UpdateStatus(ctx, id, st)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	s.metrics.statusUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(st))))
	s.notify(ctx, EventStatusChanged, o)
	return o, nil
}

// Summary totals order counts and revenue per status.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{Revenue: decimal.Zero}
	for _, st := range Statuses {
		revenue, n, err := s.store.Totals(ctx, st)
		if err != nil {
			return nil, errors.Wrapf(err, "summarize %s orders", st)
		}
		sum.ByStatus = append(sum.ByStatus, StatusTotal{Status: st, Orders: n, Revenue: revenue})
		sum.Orders += n
		sum.Revenue = sum.Revenue.Add(revenue)
	}
	return sum, nil
}

// ListRepairs returns compensations that still need to be applied.
func (s *Service) ListRepairs(ctx context.Context) ([]Repair, error) {
	repairs, err := s.repairs.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list repairs")
	}
	return repairs, nil
}

// RetryRepair applies a pending compensation and removes it on success.
func (s *Service) RetryRepair(ctx context.Context, id string) error {
	r, err := s.repairs.Get(ctx, id)
	if err != nil {
		return errors.Wrap(err, "retry repair")
	}
	if err := apply(ctx, s.store, r); err != nil {
		s.metrics.compensation(ctx, r, "failed")
		return errors.Wrapf(err, "retry repair %s", id)
	}
	s.metrics.compensation(ctx, r, "retried")

	if err := s.repairs.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "retry repair: remove record")
	}
	return nil
}

func (s *Service) notify(ctx context.Context, t EventType, o *Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, Event{
		Type:        t,
		OrderID:     o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		At:          s.now().UTC(),
	})
}
