package item

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRepo struct {
	items     map[string]Item
	createErr error
}

func newMockRepo(items ...Item) *mockRepo {
	m := &mockRepo{items: make(map[string]Item)}
	for _, it := range items {
		m.items[it.ID] = it
	}
	return m
}

func (m *mockRepo) List(_ context.Context) ([]Item, error) {
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Item, error) {
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &it, nil
}

func (m *mockRepo) Create(_ context.Context, it *Item) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.items[it.ID] = *it
	return nil
}

func (m *mockRepo) Update(_ context.Context, it *Item) error {
	if _, ok := m.items[it.ID]; !ok {
		return ErrNotFound
	}
	m.items[it.ID] = *it
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

// --- Tests ---

func TestAdd(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	it, err := svc.Add(context.Background(), Input{Name: " Tea ", Stock: 5, Price: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.NotEmpty(t, it.ID)
	assert.Equal(t, "Tea", it.Name)
	assert.Contains(t, repo.items, it.ID)
}

func TestAdd_Validation(t *testing.T) {
	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{name: "empty name", in: Input{Name: "  ", Stock: 1, Price: decimal.NewFromInt(1)}, field: "itemName"},
		{name: "negative stock", in: Input{Name: "Tea", Stock: -1, Price: decimal.NewFromInt(1)}, field: "stock"},
		{name: "negative price", in: Input{Name: "Tea", Stock: 1, Price: decimal.NewFromInt(-1)}, field: "price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			_, err := NewService(repo).Add(context.Background(), tt.in)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, repo.items)
		})
	}
}

func TestAdd_RepoError(t *testing.T) {
	repo := newMockRepo()
	repo.createErr = errors.New("backend down")

	_, err := NewService(repo).Add(context.Background(), Input{Name: "Tea", Stock: 1, Price: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add item: backend down")
}

func TestUpdate(t *testing.T) {
	repo := newMockRepo(Item{ID: "i1", Name: "Tea", Stock: 1, Price: decimal.NewFromInt(10)})
	svc := NewService(repo)

	it, err := svc.Update(context.Background(), "i1", Input{Name: "Green Tea", Stock: 7, Price: decimal.RequireFromString("12.5")})
	require.NoError(t, err)
	assert.Equal(t, "Green Tea", it.Name)
	assert.Equal(t, 7, repo.items["i1"].Stock)

	_, err = svc.Update(context.Background(), "missing", Input{Name: "x", Stock: 1, Price: decimal.Zero})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo := newMockRepo(Item{ID: "i1", Name: "Tea"})
	svc := NewService(repo)

	require.NoError(t, svc.Delete(context.Background(), "i1"))
	assert.Empty(t, repo.items)
	require.ErrorIs(t, svc.Delete(context.Background(), "i1"), ErrNotFound)
}

func TestParseStockAndPrice(t *testing.T) {
	n, err := ParseStock(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = ParseStock("twelve")
	require.EqualError(t, err, "Quantity must be a valid number")

	p, err := ParsePrice("9.99")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("9.99").Equal(p))

	_, err = ParsePrice("abc")
	require.EqualError(t, err, "Price must be a valid number")
}
