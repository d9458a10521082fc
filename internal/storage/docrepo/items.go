package docrepo

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/canteen/internal/domain/item"
	"github.com/xenking/canteen/internal/storage/docstore"
)

var _ item.Repository = (*ItemRepository)(nil)

// ItemRepository stores catalog entries in the Items collection keyed by
// itemId.
type ItemRepository struct {
	g docstore.Gateway
}

// NewItemRepository returns an ItemRepository over g.
func NewItemRepository(g docstore.Gateway) *ItemRepository {
	return &ItemRepository{g: g}
}

func (r *ItemRepository) List(ctx context.Context) ([]item.Item, error) {
	docs, err := r.g.List(ctx, docstore.Items)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	items := make([]item.Item, 0, len(docs))
	for i := range docs {
		it, err := decodeItem(&docs[i])
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, nil
}

func (r *ItemRepository) GetByID(ctx context.Context, id string) (*item.Item, error) {
	doc, err := r.g.Get(ctx, docstore.Items, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, item.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get item %s", id)
	}
	return decodeItem(doc)
}

func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	fields := encodeItem(it)
	fields["itemId"] = it.ID
	if _, err := r.g.Create(ctx, docstore.Items, it.ID, fields); err != nil {
		return errors.Wrapf(err, "create item %s", it.ID)
	}
	return nil
}

// Update merges name, stock and price into the stored item.
func (r *ItemRepository) Update(ctx context.Context, it *item.Item) error {
	_, err := r.g.Update(ctx, docstore.Items, it.ID, encodeItem(it))
	if errors.Is(err, docstore.ErrNotFound) {
		return item.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "update item %s", it.ID)
	}
	return nil
}

func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	err := r.g.Delete(ctx, docstore.Items, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return item.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "delete item %s", id)
	}
	return nil
}

func encodeItem(it *item.Item) docstore.Fields {
	return docstore.Fields{
		"itemName": it.Name,
		"stock":    it.Stock,
		"price":    money(it.Price),
	}
}

func decodeItem(doc *docstore.Document) (*item.Item, error) {
	r := newReader(doc)
	it := &item.Item{
		ID:    doc.ID,
		Name:  r.string("itemName"),
		Stock: r.int("stock"),
		Price: r.decimal("price"),
	}
	if it.Stock < 0 {
		r.fail("stock", "negative")
	}
	if r.err != nil {
		return nil, r.err
	}
	return it, nil
}
