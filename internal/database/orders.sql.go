package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, flow_id, location, status, subtotal_cents,
	delivery_fee_cents, total_cents, notes, created_at, updated_at`

const getNextOrderNumber = `-- name: GetNextOrderNumber :one
SELECT (COALESCE(MAX(seq), 0) + 1)::int4 FROM orders
`

func (q *Queries) GetNextOrderNumber(ctx context.Context) (int32, error) {
	row := q.db.QueryRow(ctx, getNextOrderNumber)
	var n int32
	err := row.Scan(&n)
	return n, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (seq, order_number, flow_id, location, status, subtotal_cents,
	delivery_fee_cents, total_cents, notes)
VALUES ($1, $2, $3, $4, 'NEW', $5, $6, $7, $8)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	Seq              int32
	OrderNumber      string
	FlowID           uuid.UUID
	Location         string
	SubtotalCents    int64
	DeliveryFeeCents int64
	TotalCents       int64
	Notes            pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.Seq,
		arg.OrderNumber,
		arg.FlowID,
		arg.Location,
		arg.SubtotalCents,
		arg.DeliveryFeeCents,
		arg.TotalCents,
		arg.Notes,
	)
	return scanOrder(row)
}

const createOrderLine = `-- name: CreateOrderLine :one
INSERT INTO order_lines (order_id, menu_item_id, name, unit_price_cents, quantity, line_total_cents)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, menu_item_id, name, unit_price_cents, quantity, line_total_cents
`

type CreateOrderLineParams struct {
	OrderID        uuid.UUID
	MenuItemID     pgtype.UUID
	Name           string
	UnitPriceCents int64
	Quantity       int32
	LineTotalCents int64
}

func (q *Queries) CreateOrderLine(ctx context.Context, arg CreateOrderLineParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, createOrderLine,
		arg.OrderID,
		arg.MenuItemID,
		arg.Name,
		arg.UnitPriceCents,
		arg.Quantity,
		arg.LineTotalCents,
	)
	var i OrderLine
	err := row.Scan(&i.ID, &i.OrderID, &i.MenuItemID, &i.Name, &i.UnitPriceCents, &i.Quantity, &i.LineTotalCents)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrderLines = `-- name: ListOrderLines :many
SELECT id, order_id, menu_item_id, name, unit_price_cents, quantity, line_total_cents
FROM order_lines WHERE order_id = $1 ORDER BY name
`

func (q *Queries) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	rows, err := q.db.Query(ctx, listOrderLines, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OrderLine, error) {
		var i OrderLine
		err := row.Scan(&i.ID, &i.OrderID, &i.MenuItemID, &i.Name, &i.UnitPriceCents, &i.Quantity, &i.LineTotalCents)
		return i, err
	})
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status))
}

func scanOrder(row pgx.Row) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.OrderNumber,
		&i.FlowID,
		&i.Location,
		&i.Status,
		&i.SubtotalCents,
		&i.DeliveryFeeCents,
		&i.TotalCents,
		&i.Notes,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
