// Package memory implements docstore.Gateway in process memory.
package memory

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/canteen/internal/storage/docstore"
)

var (
	_ docstore.Gateway    = (*Store)(nil)
	_ docstore.Aggregator = (*Store)(nil)
)

type record struct {
	seq    uint64
	fields docstore.Fields
}

// Store keeps documents in maps guarded by a single mutex. Listing
// preserves insertion order.
type Store struct {
	mu   sync.RWMutex
	seq  uint64
	data map[docstore.Collection]map[string]*record
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[docstore.Collection]map[string]*record)}
}

// Create stores a new document. It returns docstore.ErrConflict if id is
// already used in the collection.
func (s *Store) Create(_ context.Context, c docstore.Collection, id string, fields docstore.Fields) (*docstore.Document, error) {
	if id == "" {
		return nil, errors.New("document id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.data[c]
	if !ok {
		coll = make(map[string]*record)
		s.data[c] = coll
	}
	if _, exists := coll[id]; exists {
		return nil, errors.Wrapf(docstore.ErrConflict, "%s/%s", c, id)
	}
	if c == docstore.Users && emailTaken(coll, fields) {
		return nil, errors.Wrapf(docstore.ErrConflict, "%s/%s: email", c, id)
	}

	s.seq++
	coll[id] = &record{seq: s.seq, fields: fields.Clone()}
	return &docstore.Document{Collection: c, ID: id, Fields: fields.Clone()}, nil
}

// emailTaken mirrors the case-insensitive unique email index of the
// PostgreSQL gateway.
func emailTaken(users map[string]*record, fields docstore.Fields) bool {
	email, ok := fields["email"].(string)
	if !ok || email == "" {
		return false
	}
	for _, r := range users {
		if other, ok := r.fields["email"].(string); ok && strings.EqualFold(other, email) {
			return true
		}
	}
	return false
}

// Get returns a document by id.
func (s *Store) Get(_ context.Context, c docstore.Collection, id string) (*docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[c][id]
	if !ok {
		return nil, errors.Wrapf(docstore.ErrNotFound, "%s/%s", c, id)
	}
	return &docstore.Document{Collection: c, ID: id, Fields: r.fields.Clone()}, nil
}

// List returns every document of the collection matching all filters.
func (s *Store) List(_ context.Context, c docstore.Collection, filters ...docstore.Filter) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		seq uint64
		doc docstore.Document
	}
	var hits []hit
	for id, r := range s.data[c] {
		if !matches(r.fields, filters) {
			continue
		}
		hits = append(hits, hit{
			seq: r.seq,
			doc: docstore.Document{Collection: c, ID: id, Fields: r.fields.Clone()},
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	docs := make([]docstore.Document, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}
	return docs, nil
}

// Update merges fields into an existing document.
func (s *Store) Update(_ context.Context, c docstore.Collection, id string, fields docstore.Fields) (*docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[c][id]
	if !ok {
		return nil, errors.Wrapf(docstore.ErrNotFound, "%s/%s", c, id)
	}
	for k, v := range fields {
		r.fields[k] = v
	}
	return &docstore.Document{Collection: c, ID: id, Fields: r.fields.Clone()}, nil
}

// Delete removes a document.
func (s *Store) Delete(_ context.Context, c docstore.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[c][id]; !ok {
		return errors.Wrapf(docstore.ErrNotFound, "%s/%s", c, id)
	}
	delete(s.data[c], id)
	return nil
}

// Sum totals a numeric field over matching documents. Documents where the
// field is missing or not numeric count towards the total as zero.
func (s *Store) Sum(_ context.Context, c docstore.Collection, field string, filters ...docstore.Filter) (decimal.Decimal, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	count := 0
	for _, r := range s.data[c] {
		if !matches(r.fields, filters) {
			continue
		}
		count++
		if f, ok := toFloat(r.fields[field]); ok {
			sum = sum.Add(decimal.NewFromFloat(f))
		}
	}
	return sum, count, nil
}

func matches(fields docstore.Fields, filters []docstore.Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok || !equal(v, f.Value) {
			return false
		}
	}
	return true
}

// equal compares scalars, treating numeric kinds as interchangeable.
func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
