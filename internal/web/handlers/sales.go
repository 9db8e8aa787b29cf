package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/saltyorg/opsboard/internal/database"
	"github.com/saltyorg/opsboard/internal/web/sse"
)

type productJSON struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Change float64 `json:"change"`
}

type monthlySalesJSON struct {
	ID     int64   `json:"id"`
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
}

type regionSalesJSON struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Lng    float64 `json:"lng"`
	Lat    float64 `json:"lat"`
	Sales  float64 `json:"sales"`
	Growth float64 `json:"growth"`
}

// ProductsList lists products
func (h *Handlers) ProductsList(w http.ResponseWriter, r *http.Request) {
	products, err := h.db.ListProducts(caller(r).CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]productJSON, 0, len(products))
	for _, p := range products {
		out = append(out, productJSON{ID: p.ID, Name: p.Name, Price: p.Price, Change: p.Change})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"products": out})
}

// ProductCreate adds a product
func (h *Handlers) ProductCreate(w http.ResponseWriter, r *http.Request) {
	var req productJSON
	if !h.decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.Price < 0 {
		h.jsonError(w, "price cannot be negative", http.StatusBadRequest)
		return
	}

	p := &database.Product{CompanyID: caller(r).CompanyID, Name: req.Name, Price: req.Price, Change: req.Change}
	if err := h.db.CreateProduct(p); err != nil {
		h.handleError(w, r, err)
		return
	}

	out := productJSON{ID: p.ID, Name: p.Name, Price: p.Price, Change: p.Change}
	h.publish(r, sse.EventSalesChanged, map[string]any{"kind": "product", "product": out})
	h.writeJSON(w, http.StatusCreated, out)
}

// ProductDelete removes a product
func (h *Handlers) ProductDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	deleted, err := h.db.DeleteProduct(id, caller(r).CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if !deleted {
		h.jsonError(w, "Product not found", http.StatusNotFound)
		return
	}
	h.publish(r, sse.EventSalesChanged, map[string]any{"kind": "product", "deleted": id})
	h.jsonMessage(w, "Product deleted successfully")
}

// MonthlySalesList lists the monthly sales series
func (h *Handlers) MonthlySalesList(w http.ResponseWriter, r *http.Request) {
	months, err := h.db.ListMonthlySales(caller(r).CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]monthlySalesJSON, 0, len(months))
	for _, m := range months {
		out = append(out, monthlySalesJSON{ID: m.ID, Month: m.Month, Amount: m.Amount})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sales": out})
}

// MonthlySalesUpsert records the amount of a month
func (h *Handlers) MonthlySalesUpsert(w http.ResponseWriter, r *http.Request) {
	var req monthlySalesJSON
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := time.Parse("2006-01", req.Month); err != nil {
		h.jsonError(w, "month must look like 2024-01", http.StatusBadRequest)
		return
	}

	m, err := h.db.UpsertMonthlySales(caller(r).CompanyID, req.Month, req.Amount)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	out := monthlySalesJSON{ID: m.ID, Month: m.Month, Amount: m.Amount}
	h.publish(r, sse.EventSalesChanged, map[string]any{"kind": "monthly", "sales": out})
	h.writeJSON(w, http.StatusOK, out)
}

// RegionSalesList lists the regional sales markers
func (h *Handlers) RegionSalesList(w http.ResponseWriter, r *http.Request) {
	markers, err := h.db.ListRegionSales(caller(r).CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]regionSalesJSON, 0, len(markers))
	for _, m := range markers {
		out = append(out, regionSalesJSON{ID: m.ID, Name: m.Name, Lng: m.Lng, Lat: m.Lat, Sales: m.Sales, Growth: m.Growth})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"regions": out})
}

// RegionSalesUpsert records a regional marker by name
func (h *Handlers) RegionSalesUpsert(w http.ResponseWriter, r *http.Request) {
	var req regionSalesJSON
	if !h.decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		h.jsonError(w, "lat/lng out of range", http.StatusBadRequest)
		return
	}

	m := &database.RegionSales{Name: req.Name, Lng: req.Lng, Lat: req.Lat, Sales: req.Sales, Growth: req.Growth}
	if err := h.db.UpsertRegionSales(caller(r).CompanyID, m); err != nil {
		h.handleError(w, r, err)
		return
	}

	out := regionSalesJSON{ID: m.ID, Name: m.Name, Lng: m.Lng, Lat: m.Lat, Sales: m.Sales, Growth: m.Growth}
	h.publish(r, sse.EventSalesChanged, map[string]any{"kind": "region", "region": out})
	h.writeJSON(w, http.StatusOK, out)
}
