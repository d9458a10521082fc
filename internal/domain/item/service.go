package item

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidationError describes a malformed or out-of-range catalog input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Input holds the editable attributes of an item.
type Input struct {
	Name  string
	Stock int
	Price decimal.Decimal
}

// Validate checks the invariants of an item.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "itemName", Message: "Item name is required"}
	}
	if in.Stock < 0 {
		return &ValidationError{Field: "stock", Message: "Quantity must not be negative"}
	}
	if in.Price.IsNegative() {
		return &ValidationError{Field: "price", Message: "Price must not be negative"}
	}
	return nil
}

// ParseStock parses a stock value entered as text.
func ParseStock(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &ValidationError{Field: "stock", Message: "Quantity must be a valid number"}
	}
	return n, nil
}

// ParsePrice parses a price value entered as text.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "price", Message: "Price must be a valid number"}
	}
	return d, nil
}

// Service manages the catalog.
type Service struct {
	items Repository
}

// NewService creates a catalog Service.
func NewService(items Repository) *Service {
	return &Service{items: items}
}

// List returns every item in the catalog.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	items, err := s.items.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch items")
	}
	return items, nil
}

// Get returns a single item.
func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	it, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get item")
	}
	return it, nil
}

// Add validates the input and creates a new item with a fresh id.
func (s *Service) Add(ctx context.Context, in Input) (*Item, error) {
	if err := in.Validate(); err != nil {
		return nil, errors.Wrap(err, "add item")
	}

	it := &Item{
		ID:    uuid.NewString(),
		Name:  strings.TrimSpace(in.Name),
		Stock: in.Stock,
		Price: in.Price,
	}
	if err := s.items.Create(ctx, it); err != nil {
		return nil, errors.Wrap(err, "add item")
	}
	return it, nil
}

// Update replaces the name, stock and price of an existing item.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Item, error) {
	if err := in.Validate(); err != nil {
		return nil, errors.Wrap(err, "update item")
	}

	it := &Item{
		ID:    id,
		Name:  strings.TrimSpace(in.Name),
		Stock: in.Stock,
		Price: in.Price,
	}
	if err := s.items.Update(ctx, it); err != nil {
		return nil, errors.Wrap(err, "update item")
	}
	return it, nil
}

// Delete removes an item from the catalog.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.items.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete item")
	}
	return nil
}
