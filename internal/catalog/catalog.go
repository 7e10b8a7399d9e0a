// Package catalog reads menu items and their per-location prices from
// PostgreSQL and hands them to the pricing engine as pricing.MenuItem values.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/catering/internal/database"
	"github.com/kiwari-pos/catering/internal/enum"
	"github.com/kiwari-pos/catering/internal/pricing"
)

var (
	ErrNotFound      = errors.New("menu item not found")
	ErrInvalidID     = errors.New("invalid menu item id")
	ErrNegativePrice = errors.New("negative price")
	ErrNoLocation    = errors.New("location is required")
)

// Store defines the database methods the catalog needs.
// Satisfied by *database.Queries.
type Store interface {
	ListMenuItems(ctx context.Context) ([]database.MenuItem, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	ListMenuItemPrices(ctx context.Context, menuItemID uuid.UUID) ([]database.MenuItemPrice, error)
	ListAllMenuItemPrices(ctx context.Context) ([]database.MenuItemPrice, error)
	UpsertMenuItemPrice(ctx context.Context, arg database.UpsertMenuItemPriceParams) (database.MenuItemPrice, error)
}

type Catalog struct {
	store Store
}

func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// Get loads one active menu item with all its published prices.
func (c *Catalog) Get(ctx context.Context, id string) (*pricing.MenuItem, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	row, err := c.store.GetMenuItem(ctx, uid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get menu item: %w", err)
	}
	prices, err := c.store.ListMenuItemPrices(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	item := toMenuItem(row)
	for _, p := range prices {
		item.Prices[enum.Location(p.Location)] = p.PriceCents
	}
	return item, nil
}

// List loads every active menu item, ordered by name.
func (c *Catalog) List(ctx context.Context) ([]*pricing.MenuItem, error) {
	rows, err := c.store.ListMenuItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	prices, err := c.store.ListAllMenuItemPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}

	items := make([]*pricing.MenuItem, len(rows))
	byID := make(map[uuid.UUID]*pricing.MenuItem, len(rows))
	for i, row := range rows {
		items[i] = toMenuItem(row)
		byID[row.ID] = items[i]
	}
	for _, p := range prices {
		if item, ok := byID[p.MenuItemID]; ok {
			item.Prices[enum.Location(p.Location)] = p.PriceCents
		}
	}
	return items, nil
}

// SetPrice publishes the price of a menu item at loc. Flows that already
// pinned the old price keep it.
func (c *Catalog) SetPrice(ctx context.Context, id string, loc enum.Location, cents int64) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrInvalidID
	}
	if loc == "" {
		return ErrNoLocation
	}
	if cents < 0 {
		return ErrNegativePrice
	}
	if _, err := c.store.GetMenuItem(ctx, uid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get menu item: %w", err)
	}
	_, err = c.store.UpsertMenuItemPrice(ctx, database.UpsertMenuItemPriceParams{
		MenuItemID: uid,
		Location:   string(loc),
		PriceCents: cents,
	})
	if err != nil {
		return fmt.Errorf("upsert price: %w", err)
	}
	return nil
}

func toMenuItem(row database.MenuItem) *pricing.MenuItem {
	return &pricing.MenuItem{
		ID:     row.ID.String(),
		Name:   row.Name,
		Prices: make(map[enum.Location]int64),
	}
}
