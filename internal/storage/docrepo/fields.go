// Package docrepo maps domain records to documents of the Persistence
// Gateway. Field names follow the collection schema shared with existing
// clients (orderID, userId, totalAmount and so on).
package docrepo

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/canteen/internal/storage/docstore"
)

// FieldError reports a document that does not match the expected shape.
type FieldError struct {
	Collection docstore.Collection
	ID         string
	Field      string
	Reason     string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s/%s: field %s: %s", e.Collection, e.ID, e.Field, e.Reason)
}

// reader extracts typed fields from a document and keeps the first error.
type reader struct {
	doc *docstore.Document
	err error
}

func newReader(doc *docstore.Document) *reader {
	return &reader{doc: doc}
}

func (r *reader) fail(field, reason string) {
	if r.err == nil {
		r.err = &FieldError{Collection: r.doc.Collection, ID: r.doc.ID, Field: field, Reason: reason}
	}
}

func (r *reader) string(field string) string {
	v, ok := r.doc.Fields[field]
	if !ok || v == nil {
		r.fail(field, "missing")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(field, fmt.Sprintf("want string, got %T", v))
		return ""
	}
	return s
}

// optString returns "" for a missing field.
func (r *reader) optString(field string) string {
	if _, ok := r.doc.Fields[field]; !ok {
		return ""
	}
	return r.string(field)
}

func (r *reader) bool(field string) bool {
	v, ok := r.doc.Fields[field]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		r.fail(field, fmt.Sprintf("want bool, got %T", v))
	}
	return b
}

func (r *reader) float(field string) float64 {
	v, ok := r.doc.Fields[field]
	if !ok || v == nil {
		r.fail(field, "missing")
		return 0
	}
	f, err := toFloat(v)
	if err != nil {
		r.fail(field, err.Error())
	}
	return f
}

func (r *reader) int(field string) int {
	f := r.float(field)
	if f != math.Trunc(f) {
		r.fail(field, "want integer")
	}
	return int(f)
}

func (r *reader) decimal(field string) decimal.Decimal {
	return decimal.NewFromFloat(r.float(field))
}

func (r *reader) time(field string) time.Time {
	s := r.string(field)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.fail(field, "want RFC 3339 timestamp")
	}
	return t
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("want number, got %T", v)
	}
}

// money encodes a decimal as a JSON number.
func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
