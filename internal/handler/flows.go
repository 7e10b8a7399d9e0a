package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/catering/internal/enum"
	"github.com/kiwari-pos/catering/internal/pricing"
	"github.com/kiwari-pos/catering/internal/service"
	"github.com/kiwari-pos/catering/internal/session"
	"github.com/kiwari-pos/catering/internal/ws"
	"go.uber.org/zap"
)

// FlowRegistry defines the session methods needed by flow handlers.
// Satisfied by *session.Registry.
type FlowRegistry interface {
	Begin(ctx context.Context, loc enum.Location) (session.State, error)
	AddItem(ctx context.Context, id uuid.UUID, itemID string, quantity int64) (session.State, pricing.Source, error)
	AddLegacyItem(ctx context.Context, id uuid.UUID, name string, quantity int64) (session.State, pricing.Source, error)
	SetQuantity(ctx context.Context, id uuid.UUID, itemID string, quantity int64) (session.State, error)
	RemoveItem(ctx context.Context, id uuid.UUID, itemID string) (session.State, error)
	ChangeLocation(ctx context.Context, id uuid.UUID, loc enum.Location) (session.State, error)
	Quote(ctx context.Context, id uuid.UUID) (pricing.Quote, session.State, error)
	End(ctx context.Context, id uuid.UUID) error
}

// OrderSubmitter turns a priced flow into an order.
// Satisfied by *service.OrderService.
type OrderSubmitter interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.OrderResult, error)
}

// Notifier pushes flow events to watching clients. Satisfied by *ws.Hub.
type Notifier interface {
	BroadcastToFlow(flowID uuid.UUID, event ws.Event)
}

// FlowHandler handles the order-flow (cart) endpoints.
type FlowHandler struct {
	flows    FlowRegistry
	orders   OrderSubmitter
	notifier Notifier
	format   pricing.Formatter
	log      *zap.Logger
}

func NewFlowHandler(flows FlowRegistry, orders OrderSubmitter, notifier Notifier, format pricing.Formatter, log *zap.Logger) *FlowHandler {
	return &FlowHandler{flows: flows, orders: orders, notifier: notifier, format: format, log: log}
}

// RegisterRoutes registers flow endpoints. Expected to be mounted at /flows.
func (h *FlowHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Begin)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.End)
	r.Put("/{id}/location", h.ChangeLocation)
	r.Post("/{id}/items", h.AddItem)
	r.Patch("/{id}/items/{itemID}", h.SetQuantity)
	r.Delete("/{id}/items/{itemID}", h.RemoveItem)
	r.Post("/{id}/submit", h.Submit)
}

// --- Request / Response types ---

type beginFlowRequest struct {
	Location string `json:"location"`
}

type addItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"` // legacy entries without a catalog id
	Quantity   int64  `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int64 `json:"quantity"`
}

type changeLocationRequest struct {
	Location string `json:"location"`
}

type submitRequest struct {
	Notes string `json:"notes"`
}

type flowLineResponse struct {
	MenuItemID       string `json:"menu_item_id"`
	Name             string `json:"name"`
	Quantity         int64  `json:"quantity"`
	UnitPrice        int64  `json:"unit_price"`
	UnitPriceDisplay string `json:"unit_price_display"`
	LineTotal        int64  `json:"line_total"`
	LineTotalDisplay string `json:"line_total_display"`
	Priced           bool   `json:"priced"`
}

type flowResponse struct {
	ID          uuid.UUID          `json:"id"`
	Location    enum.Location      `json:"location"`
	Lines       []flowLineResponse `json:"lines"`
	Subtotal    int64              `json:"subtotal"`
	DeliveryFee int64              `json:"delivery_fee"`
	Total       int64              `json:"total"`
	Display     pricing.Display    `json:"display"`
	PriceSource string             `json:"price_source,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func (h *FlowHandler) toFlowResponse(q pricing.Quote, s session.State) flowResponse {
	resp := flowResponse{
		ID:          s.ID,
		Location:    s.Location,
		Lines:       make([]flowLineResponse, len(s.Lines)),
		Subtotal:    q.Subtotal,
		DeliveryFee: q.DeliveryFee,
		Total:       q.Total,
		Display:     q.Display(h.format),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	for i, l := range s.Lines {
		resp.Lines[i] = flowLineResponse{
			MenuItemID:       l.MenuItemID,
			Name:             l.Name,
			Quantity:         l.Quantity,
			UnitPrice:        l.UnitPrice,
			UnitPriceDisplay: h.format.Format(l.UnitPrice),
			LineTotal:        l.LineTotal(),
			LineTotalDisplay: h.format.Format(l.LineTotal()),
			Priced:           s.Pinned(l.MenuItemID),
		}
	}
	return resp
}

// --- Helpers ---

func flowID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

// handleFlowError maps registry errors to responses.
func (h *FlowHandler) handleFlowError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, session.ErrFlowNotFound):
		writeError(w, http.StatusNotFound, "order flow not found")
	case errors.Is(err, session.ErrLineNotFound):
		writeError(w, http.StatusNotFound, "item not in cart")
	case errors.Is(err, session.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(op, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respond re-quotes the flow, pushes the quote to watchers and writes it.
func (h *FlowHandler) respond(w http.ResponseWriter, r *http.Request, id uuid.UUID, status int, src *pricing.Source) {
	q, s, err := h.flows.Quote(r.Context(), id)
	if err != nil {
		h.handleFlowError(w, "quote flow", err)
		return
	}
	resp := h.toFlowResponse(q, s)
	if src != nil {
		resp.PriceSource = src.String()
	}
	h.notify(id, enum.EventQuoteUpdated, resp)
	writeJSON(w, status, resp)
}

func (h *FlowHandler) notify(id uuid.UUID, eventType string, payload interface{}) {
	if h.notifier == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("marshal event", zap.Error(err))
		return
	}
	h.notifier.BroadcastToFlow(id, ws.Event{Type: eventType, Payload: b})
}

// --- Handlers ---

// Begin starts an order flow. The location may be chosen later.
func (h *FlowHandler) Begin(w http.ResponseWriter, r *http.Request) {
	var req beginFlowRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	s, err := h.flows.Begin(r.Context(), parseLocation(req.Location))
	if err != nil {
		h.handleFlowError(w, "begin flow", err)
		return
	}
	h.respond(w, r, s.ID, http.StatusCreated, nil)
}

// Get returns the flow with its current quote.
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := flowID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid flow ID")
		return
	}
	q, s, err := h.flows.Quote(r.Context(), id)
	if err != nil {
		h.handleFlowError(w, "get flow", err)
		return
	}
	writeJSON(w, http.StatusOK, h.toFlowResponse(q, s))
}

// End abandons a flow.
func (h *FlowHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := flowID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid flow ID")
		return
	}
	if err := h.flows.End(r.Context(), id); err != nil {
		h.handleFlowError(w, "end flow", err)
		return
	}
	h.notify(id, enum.EventFlowClosed, map[string]string{"reason": "abandoned"})
	w.WriteHeader(http.StatusNoContent)
}

// ChangeLocation switches the flow's location and re-prices the cart.
func (h *FlowHandler) ChangeLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := flowID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid flow ID")
		return
	}
	var req changeLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	loc := parseLocation(req.Location)
	if loc == "" {
		writeError(w, http.StatusBadRequest, "location is required")
		return
	}
	if _, err := h.flows.ChangeLocation(r.Context(), id, loc); err != nil {
		h.handleFlowError(w, "change location", err)
		return
	}
	h.respond(w, r, id, http.StatusOK, nil)
}

// AddItem adds a menu item to the cart. The response carries price_source so
// the client can flag lines that fell back to a zero price.
func (h *FlowHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := flowID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid flow ID")
		return
	}
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MenuItemID == "" && req.Name == "" {
		writeError(w, http.StatusBadRequest, "menu_item_id or name is required")
		return
	}
	if req.MenuItemID != "" && req.Name != "" {
		writeError(w, http.StatusBadRequest, "send either menu_item_id or name, not both")
		return
	}

	var (
		src pricing.Source
		err error
	)
	if req.MenuItemID != "" {
		_, src, err = h.flows.AddItem(r.Context(), id, req.MenuItemID, req.Quantity)
	} else {
		_, src, err = h.flows.AddLegacyItem(r.Context(), id, req.Name, req.Quantity)
	}
	if err != nil {
		h.handleFlowError(w, "add item", err)
		return
	}
	h.respond(w, r, id, http.StatusOK, &src)
}

// SetQuantity changes a line's quantity. Zero keeps the line in the cart.
func (h *FlowHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := flowID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid flow ID")
		return
	}
	var req setQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.flows.SetQuantity(r.Context(), id, chi.URLParam(r, "itemID"), req.Quantity); err != nil {
		h.handleFlowError(w, "set quantity", err)
		return
	}
	h.respond(w, r, id, http.StatusOK, nil)
}

// RemoveItem drops a line from the cart.
func (h *FlowHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := flowID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid flow ID")
		return
	}
	if _, err := h.flows.RemoveItem(r.Context(), id, chi.URLParam(r, "itemID")); err != nil {
		h.handleFlowError(w, "remove item", err)
		return
	}
	h.respond(w, r, id, http.StatusOK, nil)
}

// Submit stores the flow as an order and ends the flow.
func (h *FlowHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := flowID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid flow ID")
		return
	}
	var req submitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	q, s, err := h.flows.Quote(r.Context(), id)
	if err != nil {
		h.handleFlowError(w, "quote flow", err)
		return
	}

	result, err := h.orders.Submit(r.Context(), service.SubmitRequest{Flow: s, Quote: q, Notes: req.Notes})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyCart),
			errors.Is(err, service.ErrNoLocation),
			errors.Is(err, service.ErrInvalidQuantity),
			errors.Is(err, service.ErrNegativePrice):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrUnpricedItem),
			errors.Is(err, service.ErrAlreadySubmitted):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.log.Error("submit order", zap.Stringer("flow_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	if err := h.flows.End(r.Context(), id); err != nil && !errors.Is(err, session.ErrFlowNotFound) {
		// The order is stored; a lingering flow expires on its own.
		h.log.Warn("end submitted flow", zap.Stringer("flow_id", id), zap.Error(err))
	}
	resp := toOrderResponse(result, h.format)
	h.notify(id, enum.EventFlowClosed, map[string]interface{}{"reason": "submitted", "order_id": resp.ID})
	writeJSON(w, http.StatusCreated, resp)
}
