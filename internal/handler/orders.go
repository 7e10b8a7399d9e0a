package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/catering/internal/database"
	"github.com/kiwari-pos/catering/internal/pricing"
	"github.com/kiwari-pos/catering/internal/service"
	"go.uber.org/zap"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	Get(ctx context.Context, id uuid.UUID) (*service.OrderResult, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (database.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc    OrderServicer
	format pricing.Formatter
	log    *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, format pricing.Formatter, log *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, format: format, log: log}
}

// RegisterRoutes registers order endpoints. Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderLineResponse struct {
	ID               uuid.UUID  `json:"id"`
	MenuItemID       *uuid.UUID `json:"menu_item_id"`
	Name             string     `json:"name"`
	Quantity         int32      `json:"quantity"`
	UnitPrice        int64      `json:"unit_price"`
	UnitPriceDisplay string     `json:"unit_price_display"`
	LineTotal        int64      `json:"line_total"`
	LineTotalDisplay string     `json:"line_total_display"`
}

type orderResponse struct {
	ID          uuid.UUID           `json:"id"`
	OrderNumber string              `json:"order_number"`
	FlowID      uuid.UUID           `json:"flow_id"`
	Location    string              `json:"location"`
	Status      string              `json:"status"`
	Subtotal    int64               `json:"subtotal"`
	DeliveryFee int64               `json:"delivery_fee"`
	Total       int64               `json:"total"`
	Display     pricing.Display     `json:"display"`
	Notes       *string             `json:"notes"`
	Lines       []orderLineResponse `json:"lines,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func toOrderHeader(o database.Order, f pricing.Formatter) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		FlowID:      o.FlowID,
		Location:    o.Location,
		Status:      o.Status,
		Subtotal:    o.SubtotalCents,
		DeliveryFee: o.DeliveryFeeCents,
		Total:       o.TotalCents,
		Display: pricing.Display{
			Subtotal:    f.Format(o.SubtotalCents),
			DeliveryFee: f.Format(o.DeliveryFeeCents),
			Total:       f.Format(o.TotalCents),
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	return resp
}

func toOrderResponse(res *service.OrderResult, f pricing.Formatter) orderResponse {
	resp := toOrderHeader(res.Order, f)
	resp.Lines = make([]orderLineResponse, len(res.Lines))
	for i, l := range res.Lines {
		line := orderLineResponse{
			ID:               l.ID,
			Name:             l.Name,
			Quantity:         l.Quantity,
			UnitPrice:        l.UnitPriceCents,
			UnitPriceDisplay: f.Format(l.UnitPriceCents),
			LineTotal:        l.LineTotalCents,
			LineTotalDisplay: f.Format(l.LineTotalCents),
		}
		if l.MenuItemID.Valid {
			id := uuid.UUID(l.MenuItemID.Bytes)
			line.MenuItemID = &id
		}
		resp.Lines[i] = line
	}
	return resp
}

// --- Handlers ---

// Get returns an order with its lines.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}
	res, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.log.Error("get order", zap.Stringer("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(res, h.format))
}

// UpdateStatus moves an order to a new status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID")
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.svc.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, "invalid status")
		case errors.Is(err, service.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, service.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.log.Error("update order status", zap.Stringer("order_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, toOrderHeader(order, h.format))
}
