package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/catering/internal/database"
	"github.com/kiwari-pos/catering/internal/enum"
	"github.com/kiwari-pos/catering/internal/pricing"
	"github.com/kiwari-pos/catering/internal/session"
	"go.uber.org/zap"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrNoLocation        = errors.New("location is required")
	ErrInvalidQuantity   = errors.New("quantity must be >= 0")
	ErrNegativePrice     = errors.New("unit price must be >= 0")
	ErrUnpricedItem      = errors.New("item has no catalog price")
	ErrAlreadySubmitted  = errors.New("order flow already submitted")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("status transition not allowed")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to write orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetNextOrderNumber(ctx context.Context) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
}

// OrderReader defines the DB methods needed to read orders back.
type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]database.OrderLine, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// Publisher announces submitted orders to the kitchen and invoicing.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, msg any) error
}

// SubmitRequest is a priced flow ready to become an order.
type SubmitRequest struct {
	Flow  session.State
	Quote pricing.Quote
	Notes string
}

// OrderResult is an order with its lines.
type OrderResult struct {
	Order database.Order
	Lines []database.OrderLine
}

// OrderSubmittedEvent is published after an order commits.
type OrderSubmittedEvent struct {
	OrderID     uuid.UUID     `json:"order_id"`
	OrderNumber string        `json:"order_number"`
	FlowID      uuid.UUID     `json:"flow_id"`
	Location    enum.Location `json:"location"`
	Subtotal    int64         `json:"subtotal"`
	DeliveryFee int64         `json:"delivery_fee"`
	Total       int64         `json:"total"`
}

// OrderService handles order submission and status changes.
type OrderService struct {
	pool      TxBeginner
	newStore  NewOrderStore
	reader    OrderReader
	publisher Publisher
	log       *zap.Logger
}

// NewOrderService creates a new OrderService. publisher may be nil.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, reader OrderReader, publisher Publisher, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{pool: pool, newStore: newStore, reader: reader, publisher: publisher, log: log}
}

// Submit validates a priced flow and stores it as an order atomically.
// Totals are taken from the quote so the stored amounts match what the
// customer was shown. Retries up to maxOrderNumberRetries times when a
// concurrent submission took the same order number.
func (s *OrderService) Submit(ctx context.Context, req SubmitRequest) (*OrderResult, error) {
	if req.Flow.Location == "" {
		return nil, ErrNoLocation
	}
	lines, err := validateLines(req.Flow)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.submitTx(ctx, req, lines)
		if err == nil {
			s.announce(ctx, req, result.Order)
			return result, nil
		}
		if isConstraintViolation(err, "orders_flow_id_key") {
			return nil, ErrAlreadySubmitted
		}
		if isConstraintViolation(err, "orders_seq_key") {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// validateLines returns the lines to store. Zero-quantity lines are dropped;
// they add nothing to the totals.
func validateLines(flow session.State) ([]pricing.CartLine, error) {
	var out []pricing.CartLine
	for i, l := range flow.Lines {
		if l.Quantity < 0 || l.Quantity > math.MaxInt32 {
			return nil, fmt.Errorf("line[%d]: %w", i, ErrInvalidQuantity)
		}
		if l.UnitPrice < 0 {
			return nil, fmt.Errorf("line[%d]: %w", i, ErrNegativePrice)
		}
		if l.Quantity == 0 {
			continue
		}
		if l.UnitPrice > math.MaxInt64/l.Quantity {
			return nil, fmt.Errorf("line[%d]: line total overflows: %w", i, ErrInvalidQuantity)
		}
		if !flow.Pinned(l.MenuItemID) {
			return nil, fmt.Errorf("line[%d] %s: %w", i, l.MenuItemID, ErrUnpricedItem)
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, ErrEmptyCart
	}
	return out, nil
}

func isConstraintViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

func (s *OrderService) submitTx(ctx context.Context, req SubmitRequest, lines []pricing.CartLine) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	seq, err := store.GetNextOrderNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}

	notes := pgtype.Text{}
	if req.Notes != "" {
		notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		Seq:              seq,
		OrderNumber:      fmt.Sprintf("CAT-%04d", seq),
		FlowID:           req.Flow.ID,
		Location:         string(req.Flow.Location),
		SubtotalCents:    req.Quote.Subtotal,
		DeliveryFeeCents: req.Quote.DeliveryFee,
		TotalCents:       req.Quote.Total,
		Notes:            notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	result := &OrderResult{Order: order}
	for _, l := range lines {
		menuItemID := pgtype.UUID{}
		if id, err := uuid.Parse(l.MenuItemID); err == nil {
			menuItemID = pgtype.UUID{Bytes: id, Valid: true}
		}
		line, err := store.CreateOrderLine(ctx, database.CreateOrderLineParams{
			OrderID:        order.ID,
			MenuItemID:     menuItemID,
			Name:           l.Name,
			UnitPriceCents: l.UnitPrice,
			Quantity:       int32(l.Quantity),
			LineTotalCents: l.LineTotal(),
		})
		if err != nil {
			return nil, fmt.Errorf("create order line: %w", err)
		}
		result.Lines = append(result.Lines, line)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

// announce publishes the submitted order. The order is already committed,
// so a broker failure is logged, not returned.
func (s *OrderService) announce(ctx context.Context, req SubmitRequest, order database.Order) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, enum.EventOrderSubmitted, OrderSubmittedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		FlowID:      req.Flow.ID,
		Location:    req.Flow.Location,
		Subtotal:    order.SubtotalCents,
		DeliveryFee: order.DeliveryFeeCents,
		Total:       order.TotalCents,
	})
	if err != nil {
		s.log.Error("publish order submitted", zap.Stringer("order_id", order.ID), zap.Error(err))
	}
}

// Get returns an order with its lines.
func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (*OrderResult, error) {
	order, err := s.reader.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	lines, err := s.reader.ListOrderLines(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	return &OrderResult{Order: order, Lines: lines}, nil
}

// transitions lists the statuses each status may move to.
var transitions = map[string][]string{
	enum.OrderStatusNew:       {enum.OrderStatusConfirmed, enum.OrderStatusCancelled},
	enum.OrderStatusConfirmed: {enum.OrderStatusDelivered, enum.OrderStatusCancelled},
}

// UpdateStatus moves an order along NEW → CONFIRMED → DELIVERED, or to
// CANCELLED before delivery.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (database.Order, error) {
	switch status {
	case enum.OrderStatusNew, enum.OrderStatusConfirmed, enum.OrderStatusDelivered, enum.OrderStatusCancelled:
	default:
		return database.Order{}, ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	current, err := store.GetOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !canTransition(current.Status, status) {
		return database.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{ID: id, Status: status})
	if err != nil {
		return database.Order{}, fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

func canTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
