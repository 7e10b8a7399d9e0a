package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const listMenuItems = `-- name: ListMenuItems :many
SELECT id, name, is_active, created_at, updated_at FROM menu_items
WHERE is_active = true
ORDER BY name
`

func (q *Queries) ListMenuItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItems)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanMenuItem)
}

const getMenuItem = `-- name: GetMenuItem :one
SELECT id, name, is_active, created_at, updated_at FROM menu_items
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItem, id)
	var i MenuItem
	err := row.Scan(&i.ID, &i.Name, &i.IsActive, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const createMenuItem = `-- name: CreateMenuItem :one
INSERT INTO menu_items (name) VALUES ($1)
RETURNING id, name, is_active, created_at, updated_at
`

func (q *Queries) CreateMenuItem(ctx context.Context, name string) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem, name)
	var i MenuItem
	err := row.Scan(&i.ID, &i.Name, &i.IsActive, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const listMenuItemPrices = `-- name: ListMenuItemPrices :many
SELECT menu_item_id, location, price_cents, updated_at FROM menu_item_prices
WHERE menu_item_id = $1
`

func (q *Queries) ListMenuItemPrices(ctx context.Context, menuItemID uuid.UUID) ([]MenuItemPrice, error) {
	rows, err := q.db.Query(ctx, listMenuItemPrices, menuItemID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanMenuItemPrice)
}

const listAllMenuItemPrices = `-- name: ListAllMenuItemPrices :many
SELECT p.menu_item_id, p.location, p.price_cents, p.updated_at
FROM menu_item_prices p
JOIN menu_items m ON m.id = p.menu_item_id
WHERE m.is_active = true
`

func (q *Queries) ListAllMenuItemPrices(ctx context.Context) ([]MenuItemPrice, error) {
	rows, err := q.db.Query(ctx, listAllMenuItemPrices)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanMenuItemPrice)
}

const upsertMenuItemPrice = `-- name: UpsertMenuItemPrice :one
INSERT INTO menu_item_prices (menu_item_id, location, price_cents)
VALUES ($1, $2, $3)
ON CONFLICT (menu_item_id, location)
DO UPDATE SET price_cents = EXCLUDED.price_cents, updated_at = now()
RETURNING menu_item_id, location, price_cents, updated_at
`

type UpsertMenuItemPriceParams struct {
	MenuItemID uuid.UUID
	Location   string
	PriceCents int64
}

func (q *Queries) UpsertMenuItemPrice(ctx context.Context, arg UpsertMenuItemPriceParams) (MenuItemPrice, error) {
	row := q.db.QueryRow(ctx, upsertMenuItemPrice, arg.MenuItemID, arg.Location, arg.PriceCents)
	var i MenuItemPrice
	err := row.Scan(&i.MenuItemID, &i.Location, &i.PriceCents, &i.UpdatedAt)
	return i, err
}

func scanMenuItem(row pgx.CollectableRow) (MenuItem, error) {
	var i MenuItem
	err := row.Scan(&i.ID, &i.Name, &i.IsActive, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func scanMenuItemPrice(row pgx.CollectableRow) (MenuItemPrice, error) {
	var i MenuItemPrice
	err := row.Scan(&i.MenuItemID, &i.Location, &i.PriceCents, &i.UpdatedAt)
	return i, err
}
