package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/saltyorg/opsboard/internal/auth"
	"github.com/saltyorg/opsboard/internal/database"
	"github.com/saltyorg/opsboard/internal/web/sse"
)

type stockItemJSON struct {
	ID        int64     `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Quantity  int64     `json:"quantity"`
	UnitPrice float64   `json:"unitPrice"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type stockPatchJSON struct {
	SKU       *string  `json:"sku"`
	Name      *string  `json:"name"`
	Quantity  *int64   `json:"quantity"`
	UnitPrice *float64 `json:"unitPrice"`
	Location  *string  `json:"location"`
}

func toStockJSON(s *database.StockItem) stockItemJSON {
	return stockItemJSON{
		ID:        s.ID,
		SKU:       s.SKU,
		Name:      s.Name,
		Quantity:  s.Quantity,
		UnitPrice: s.UnitPrice,
		Location:  s.Location,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// StockList lists the stock of the caller's company
func (h *Handlers) StockList(w http.ResponseWriter, r *http.Request) {
	items, err := h.db.ListStockItems(caller(r).CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]stockItemJSON, 0, len(items))
	for _, item := range items {
		out = append(out, toStockJSON(item))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

// StockGet returns one stock item
func (h *Handlers) StockGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	item, err := h.db.GetStockItem(id, caller(r).CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if item == nil {
		h.jsonError(w, "Stock item not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, toStockJSON(item))
}

// StockCreate adds a stock item
func (h *Handlers) StockCreate(w http.ResponseWriter, r *http.Request) {
	var req stockPatchJSON
	if !h.decode(w, r, &req) {
		return
	}
	if req.SKU == nil || strings.TrimSpace(*req.SKU) == "" || req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		h.jsonError(w, "sku and name are required", http.StatusBadRequest)
		return
	}

	item := &database.StockItem{
		CompanyID: caller(r).CompanyID,
		SKU:       strings.TrimSpace(*req.SKU),
		Name:      strings.TrimSpace(*req.Name),
	}
	if req.Quantity != nil {
		item.Quantity = *req.Quantity
	}
	if req.UnitPrice != nil {
		item.UnitPrice = *req.UnitPrice
	}
	if req.Location != nil {
		item.Location = *req.Location
	}
	if item.Quantity < 0 || item.UnitPrice < 0 {
		h.jsonError(w, "quantity and unitPrice cannot be negative", http.StatusBadRequest)
		return
	}

	if err := h.db.CreateStockItem(item); err != nil {
		if auth.IsUniqueViolation(err) {
			h.jsonError(w, "A stock item with this SKU already exists", http.StatusConflict)
			return
		}
		h.handleError(w, r, err)
		return
	}

	out := toStockJSON(item)
	h.publish(r, sse.EventStockChanged, map[string]any{"action": "created", "item": out})
	h.writeJSON(w, http.StatusCreated, out)
}

// StockUpdate applies a sparse patch to a stock item
func (h *Handlers) StockUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req stockPatchJSON
	if !h.decode(w, r, &req) {
		return
	}
	if req.SKU != nil {
		h.jsonError(w, "sku cannot be changed", http.StatusBadRequest)
		return
	}
	if (req.Quantity != nil && *req.Quantity < 0) || (req.UnitPrice != nil && *req.UnitPrice < 0) {
		h.jsonError(w, "quantity and unitPrice cannot be negative", http.StatusBadRequest)
		return
	}

	item, err := h.db.UpdateStockItem(id, caller(r).CompanyID, database.StockPatch{
		Name:      req.Name,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Location:  req.Location,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if item == nil {
		h.jsonError(w, "Stock item not found", http.StatusNotFound)
		return
	}

	out := toStockJSON(item)
	h.publish(r, sse.EventStockChanged, map[string]any{"action": "updated", "item": out})
	h.writeJSON(w, http.StatusOK, out)
}

// StockDelete removes a stock item
func (h *Handlers) StockDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	deleted, err := h.db.DeleteStockItem(id, caller(r).CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if !deleted {
		h.jsonError(w, "Stock item not found", http.StatusNotFound)
		return
	}

	h.publish(r, sse.EventStockChanged, map[string]any{"action": "deleted", "id": id})
	h.jsonMessage(w, "Stock item deleted successfully")
}
