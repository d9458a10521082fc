// Package cart holds a student's pending selection and turns it into an
// order at checkout.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/canteen/internal/domain/item"
	"github.com/xenking/canteen/internal/domain/order"
)

// Line is one entry of a cart. Price and Stock are snapshots taken when the
// item was last added.
type Line struct {
	ItemID   string          `json:"itemId"`
	Name     string          `json:"itemName"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Stock    int             `json:"stock"`
}

// Total returns quantity × price.
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered set of lines keyed by item id. The zero value is an
// empty cart. A Cart is not safe for concurrent use.
type Cart struct {
	lines []Line
}

// New returns a cart holding lines. Lines with a non-positive quantity are
// dropped and repeated item ids are merged.
func New(lines ...Line) *Cart {
	c := &Cart{}
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i := c.index(l.ItemID); i >= 0 {
			c.lines[i].Quantity += l.Quantity
			continue
		}
		c.lines = append(c.lines, l)
	}
	return c
}

func (c *Cart) index(itemID string) int {
	for i := range c.lines {
		if c.lines[i].ItemID == itemID {
			return i
		}
	}
	return -1
}

// AddOne adds a unit of it and reports whether the cart changed. The
// quantity never exceeds the item's stock. The line's name, price and stock
// are refreshed only when a unit is added; a capped line is left as is.
func (c *Cart) AddOne(it item.Item) bool {
	if i := c.index(it.ID); i >= 0 {
		l := &c.lines[i]
		if l.Quantity >= it.Stock {
			return false
		}
		l.Name, l.Price, l.Stock = it.Name, it.Price, it.Stock
		l.Quantity++
		return true
	}

	if it.Stock <= 0 {
		return false
	}
	c.lines = append(c.lines, Line{
		ItemID:   it.ID,
		Name:     it.Name,
		Price:    it.Price,
		Quantity: 1,
		Stock:    it.Stock,
	})
	return true
}

// RemoveOne takes a unit off the line of itemID and drops the line when
// it reaches zero. It reports whether the item was in the cart.
func (c *Cart) RemoveOne(itemID string) bool {
	i := c.index(itemID)
	if i < 0 {
		return false
	}
	if c.lines[i].Quantity > 1 {
		c.lines[i].Quantity--
		return true
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return true
}

// Quantity returns the units of itemID in the cart.
func (c *Cart) Quantity(itemID string) int {
	if i := c.index(itemID); i >= 0 {
		return c.lines[i].Quantity
	}
	return 0
}

// Total sums quantity × price over all lines.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Total())
	}
	return total
}

// Lines returns a copy of the lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.lines = nil
}

// OrderLines converts the cart into order lines.
func (c *Cart) OrderLines() []order.Line {
	out := make([]order.Line, len(c.lines))
	for i, l := range c.lines {
		out[i] = order.Line{
			ItemID:   l.ItemID,
			ItemName: l.Name,
			Quantity: l.Quantity,
			Price:    l.Price,
		}
	}
	return out
}
