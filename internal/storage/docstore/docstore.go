// Package docstore defines the Persistence Gateway: a flat document store
// addressed by collection and document id, with single-field equality
// filtering and no cross-document guarantees unless the implementation
// also satisfies Transactor.
package docstore

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Collection names a group of documents, analogous to a table.
type Collection string

// Collections used by the service.
const (
	Users      Collection = "users"
	Items      Collection = "items"
	Orders     Collection = "orders"
	OrderItems Collection = "order_items"
	Repairs    Collection = "repairs"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when creating a document whose id is taken.
	ErrConflict = errors.New("document already exists")
)

// Fields is the body of a document. Values are JSON-compatible scalars.
type Fields map[string]any

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Document is a single persisted record.
type Document struct {
	Collection Collection
	ID         string
	Fields     Fields
}

// Filter matches documents whose Field equals Value.
type Filter struct {
	Field string
	Value any
}

// Eq is a shorthand for Filter{Field: field, Value: value}.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Gateway is the set of single round-trip operations every backend offers.
// Each write is durable on return.
type Gateway interface {
	Create(ctx context.Context, c Collection, id string, fields Fields) (*Document, error)
	Get(ctx context.Context, c Collection, id string) (*Document, error)
	List(ctx context.Context, c Collection, filters ...Filter) ([]Document, error)
	// Update merges fields into the stored document.
	Update(ctx context.Context, c Collection, id string, fields Fields) (*Document, error)
	Delete(ctx context.Context, c Collection, id string) error
}

// Transactor is implemented by gateways that can run several writes
// atomically. The Gateway passed to fn is only valid inside fn.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, g Gateway) error) error
}

// Aggregator is implemented by gateways that can total a numeric field
// without returning the documents. It reports the sum and the number of
// matching documents.
type Aggregator interface {
	Sum(ctx context.Context, c Collection, field string, filters ...Filter) (decimal.Decimal, int, error)
}
