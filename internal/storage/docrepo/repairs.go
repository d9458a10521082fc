package docrepo

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/canteen/internal/domain/order"
	"github.com/xenking/canteen/internal/storage/docstore"
)

var _ order.RepairStore = (*RepairStore)(nil)

// RepairStore keeps pending compensations in the Repairs collection. The
// line to restore is embedded under "item" with the OrderItems field names.
type RepairStore struct {
	g docstore.Gateway
}

// NewRepairStore returns a RepairStore over g.
func NewRepairStore(g docstore.Gateway) *RepairStore {
	return &RepairStore{g: g}
}

func (s *RepairStore) Create(ctx context.Context, r *order.Repair) error {
	if _, err := s.g.Create(ctx, docstore.Repairs, r.ID, encodeRepair(r)); err != nil {
		return errors.Wrapf(err, "create repair %s", r.ID)
	}
	return nil
}

func (s *RepairStore) Get(ctx context.Context, id string) (*order.Repair, error) {
	doc, err := s.g.Get(ctx, docstore.Repairs, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, order.ErrRepairNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get repair %s", id)
	}
	return decodeRepair(doc)
}

func (s *RepairStore) List(ctx context.Context) ([]order.Repair, error) {
	docs, err := s.g.List(ctx, docstore.Repairs)
	if err != nil {
		return nil, errors.Wrap(err, "list repairs")
	}
	repairs := make([]order.Repair, 0, len(docs))
	for i := range docs {
		r, err := decodeRepair(&docs[i])
		if err != nil {
			return nil, err
		}
		repairs = append(repairs, *r)
	}
	return repairs, nil
}

func (s *RepairStore) Delete(ctx context.Context, id string) error {
	err := s.g.Delete(ctx, docstore.Repairs, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return order.ErrRepairNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "delete repair %s", id)
	}
	return nil
}

func encodeRepair(r *order.Repair) docstore.Fields {
	f := docstore.Fields{
		"operation":  r.Operation,
		"orderId":    r.OrderID,
		"target":     string(r.Target),
		"action":     string(r.Action),
		"documentId": r.DocumentID,
		"error":      r.Error,
		"createdAt":  timestamp(r.CreatedAt),
	}
	if r.Item != nil {
		f["item"] = map[string]any(encodeOrderItem(r.Item))
	}
	return f
}

func decodeRepair(doc *docstore.Document) (*order.Repair, error) {
	rd := newReader(doc)
	r := &order.Repair{
		ID:         doc.ID,
		Operation:  rd.string("operation"),
		OrderID:    rd.string("orderId"),
		Target:     order.Target(rd.string("target")),
		Action:     order.Action(rd.string("action")),
		DocumentID: rd.string("documentId"),
		Error:      rd.optString("error"),
		CreatedAt:  rd.time("createdAt"),
	}
	if rd.err != nil {
		return nil, rd.err
	}

	raw, ok := doc.Fields["item"]
	if !ok || raw == nil {
		return r, nil
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		if f, isFields := raw.(docstore.Fields); isFields {
			fields = f
		} else {
			return nil, &FieldError{Collection: doc.Collection, ID: doc.ID, Field: "item", Reason: "want object"}
		}
	}
	itemDoc := &docstore.Document{Collection: docstore.OrderItems, ID: r.DocumentID, Fields: fields}
	it, err := decodeOrderItem(itemDoc)
	if err != nil {
		return nil, err
	}
	r.Item = it
	return r, nil
}
