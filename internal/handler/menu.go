package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/catering/internal/catalog"
	"github.com/kiwari-pos/catering/internal/enum"
	"github.com/kiwari-pos/catering/internal/pricing"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MenuCatalog defines the catalog methods needed by menu handlers.
// Satisfied by *catalog.Catalog.
type MenuCatalog interface {
	List(ctx context.Context) ([]*pricing.MenuItem, error)
	SetPrice(ctx context.Context, id string, loc enum.Location, cents int64) error
}

// MenuHandler serves per-location menus and price publication.
type MenuHandler struct {
	catalog MenuCatalog
	format  pricing.Formatter
	log     *zap.Logger
}

func NewMenuHandler(c MenuCatalog, format pricing.Formatter, log *zap.Logger) *MenuHandler {
	return &MenuHandler{catalog: c, format: format, log: log}
}

func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/locations/{loc}/menu", h.ListForLocation)
}

// RegisterAdminRoutes registers price publication.
func (h *MenuHandler) RegisterAdminRoutes(r chi.Router) {
	r.Put("/menu/{id}/prices/{loc}", h.SetPrice)
}

// --- Request / Response types ---

type menuItemResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	PriceDisplay string `json:"price_display"`
}

type setPriceRequest struct {
	Price string `json:"price"` // major units, e.g. "12.50"
}

// --- Handlers ---

// ListForLocation returns the items priced at the location. Items without a
// published price there are left out.
func (h *MenuHandler) ListForLocation(w http.ResponseWriter, r *http.Request) {
	loc := parseLocation(chi.URLParam(r, "loc"))

	items, err := h.catalog.List(r.Context())
	if err != nil {
		h.log.Error("list menu", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]menuItemResponse, 0, len(items))
	for _, item := range items {
		p, ok := item.PriceAt(loc)
		if !ok {
			continue
		}
		resp = append(resp, menuItemResponse{
			ID:           item.ID,
			Name:         item.Name,
			Price:        p,
			PriceDisplay: h.format.Format(p),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetPrice publishes a menu item's price at a location.
func (h *MenuHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req setPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}
	if d.IsNegative() {
		writeError(w, http.StatusBadRequest, "price must be >= 0")
		return
	}
	cents := pricing.ToMinorUnits(d)
	loc := parseLocation(chi.URLParam(r, "loc"))

	err = h.catalog.SetPrice(r.Context(), chi.URLParam(r, "id"), loc, cents)
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid menu item ID")
		return
	case errors.Is(err, catalog.ErrNoLocation), errors.Is(err, catalog.ErrNegativePrice):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "menu item not found")
		return
	default:
		h.log.Error("set price", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"menu_item_id":  chi.URLParam(r, "id"),
		"location":      loc,
		"price":         cents,
		"price_display": h.format.Format(cents),
	})
}
