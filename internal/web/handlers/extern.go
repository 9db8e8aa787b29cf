package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/opsboard/internal/extern"
)

// ExtractDatabase reads a table from an external database
func (h *Handlers) ExtractDatabase(w http.ResponseWriter, r *http.Request) {
	var req extern.Request
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.extern.QueryTable(r.Context(), req)
	if err != nil {
		log.Warn().Err(err).Str("table", req.TableName).Msg("External query failed")
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ExternTables lists the tables of an external database
func (h *Handlers) ExternTables(w http.ResponseWriter, r *http.Request) {
	var req extern.TablesRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.extern.ListTables(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
