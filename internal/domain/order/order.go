package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/canteen/internal/domain/user"
)

// Status is the fulfilment stage of an order.
type Status string

const (
	StatusReceived Status = "Received"
	StatusPrepared Status = "Prepared"
	StatusPicked   Status = "Picked"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusReceived, StatusPrepared, StatusPicked}

// ParseStatus validates s against the status enum.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &InvalidStatusError{Value: s}
}

// Next returns the stage that follows s. Picked has no successor.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusReceived:
		return StatusPrepared, true
	case StatusPrepared:
		return StatusPicked, true
	default:
		return "", false
	}
}

// Order is a placed order, optionally joined with its lines and owner.
type Order struct {
	ID          string
	UserID      string
	TotalAmount decimal.Decimal
	OrderDate   time.Time
	Status      Status
	Items       []OrderItem
	// User is only resolved by FetchAllOrders and is nil when the owner no
	// longer exists.
	User *user.User
}

// OrderItem is one persisted line of an order.
type OrderItem struct {
	ID         string
	OrderID    string
	ItemID     string
	ItemName   string
	Quantity   int
	Price      decimal.Decimal
	TotalPrice decimal.Decimal
}

// Line is a requested order line, usually a cart snapshot entry.
type Line struct {
	ItemID   string
	ItemName string
	Quantity int
	Price    decimal.Decimal
}

// Total returns quantity × price.
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Admin  bool
}

// Store defines persistence operations for orders and their lines.
type Store interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	// ListOrders lists orders of userID, or every order when userID is empty.
	ListOrders(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	DeleteOrder(ctx context.Context, id string) error

	CreateItem(ctx context.Context, it *OrderItem) error
	ListItems(ctx context.Context, orderID string) ([]OrderItem, error)
	DeleteItem(ctx context.Context, id string) error

	// Totals sums TotalAmount over the orders with the given status.
	Totals(ctx context.Context, status Status) (decimal.Decimal, int, error)
}

// Transactor runs fn against a Store whose writes commit together.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// UserLookup resolves order owners.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// Target is the kind of document a compensation acts on.
type Target string

const (
	TargetOrder     Target = "order"
	TargetOrderItem Target = "order_item"
)

// Action is the compensating write to perform.
type Action string

const (
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore"
)

// Repair is a compensation that could not be applied and awaits a retry.
type Repair struct {
	ID         string
	Operation  string
	OrderID    string
	Target     Target
	Action     Action
	DocumentID string
	// Item is the line to recreate for ActionRestore.
	Item      *OrderItem
	Error     string
	CreatedAt time.Time
}

// RepairStore persists pending repairs.
type RepairStore interface {
	Create(ctx context.Context, r *Repair) error
	Get(ctx context.Context, id string) (*Repair, error)
	List(ctx context.Context) ([]Repair, error)
	Delete(ctx context.Context, id string) error
}

// EventType names an order lifecycle event.
type EventType string

const (
	EventPlaced        EventType = "order.placed"
	EventStatusChanged EventType = "order.status_changed"
	EventCancelled     EventType = "order.cancelled"
)

// Event describes a lifecycle change pushed to subscribers.
type Event struct {
	Type        EventType       `json:"type"`
	OrderID     string          `json:"orderId"`
	UserID      string          `json:"userId"`
	Status      Status          `json:"status,omitempty"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	At          time.Time       `json:"at"`
}

// Notifier receives lifecycle events. Notify must not block.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// StatusTotal aggregates orders in one status.
type StatusTotal struct {
	Status  Status
	Orders  int
	Revenue decimal.Decimal
}

// Summary aggregates every order by status.
type Summary struct {
	ByStatus []StatusTotal
	Orders   int
	Revenue  decimal.Decimal
}
