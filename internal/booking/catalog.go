// Package booking is a sample flow: the user picks items, shares a phone
// number and confirms the booking.
package booking

import (
	"context"
	"errors"
)

var ErrItemNotFound = errors.New("booking: item not found")

type Item struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// Catalog lists what can be booked.
type Catalog interface {
	Items(ctx context.Context) ([]Item, error)
	Item(ctx context.Context, id string) (Item, error)
}

// StaticCatalog serves a fixed item list.
type StaticCatalog struct {
	items []Item
	byID  map[string]Item
}

func NewStaticCatalog(items []Item) *StaticCatalog {
	c := &StaticCatalog{items: append([]Item(nil), items...), byID: make(map[string]Item, len(items))}
	for _, it := range items {
		c.byID[it.ID] = it
	}
	return c
}

// DefaultCatalog is the demo item list.
func DefaultCatalog() *StaticCatalog {
	return NewStaticCatalog([]Item{
		{ID: "store_1", Title: "Table by the window"},
		{ID: "store_2", Title: "Table on the terrace"},
		{ID: "store_3", Title: "Bar counter"},
		{ID: "store_4", Title: "Private room"},
		{ID: "store_5", Title: "Garden table"},
		{ID: "store_6", Title: "Chef's table"},
		{ID: "store_7", Title: "Booth"},
	})
}

func (c *StaticCatalog) Items(context.Context) ([]Item, error) {
	return append([]Item(nil), c.items...), nil
}

func (c *StaticCatalog) Item(_ context.Context, id string) (Item, error) {
	it, ok := c.byID[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return it, nil
}
