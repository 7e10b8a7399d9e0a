package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type MenuItem struct {
	ID        uuid.UUID
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MenuItemPrice struct {
	MenuItemID uuid.UUID
	Location   string
	PriceCents int64
	UpdatedAt  time.Time
}

type Order struct {
	ID               uuid.UUID
	OrderNumber      string
	FlowID           uuid.UUID
	Location         string
	Status           string
	SubtotalCents    int64
	DeliveryFeeCents int64
	TotalCents       int64
	Notes            pgtype.Text
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type OrderLine struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	MenuItemID     pgtype.UUID // null for name-priced legacy lines
	Name           string
	UnitPriceCents int64
	Quantity       int32
	LineTotalCents int64
}
