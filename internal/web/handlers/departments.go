package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saltyorg/opsboard/internal/departments"
)

type departmentResponse struct {
	Department *departments.View `json:"Department"`
}

type jsonAttachment struct {
	JSON json.RawMessage `json:"json"`
}

type connectionAttachment struct {
	ConnectionString string `json:"databaseConnectionConnectionString"`
}

// DepartmentsList lists the departments visible to the caller
func (h *Handlers) DepartmentsList(w http.ResponseWriter, r *http.Request) {
	views, err := h.departments.List(caller(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"Departments": views})
}

// DepartmentCreate creates a department
func (h *Handlers) DepartmentCreate(w http.ResponseWriter, r *http.Request) {
	var in departments.Input
	if !h.decode(w, r, &in) {
		return
	}

	v, err := h.departments.Create(caller(r), in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, departmentResponse{Department: v})
}

// DepartmentGet returns one department
func (h *Handlers) DepartmentGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.departments.Get(chi.URLParam(r, "id"), caller(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, departmentResponse{Department: v})
}

// DepartmentUpdate applies a sparse patch
func (h *Handlers) DepartmentUpdate(w http.ResponseWriter, r *http.Request) {
	var in departments.Input
	if !h.decode(w, r, &in) {
		return
	}

	if _, err := h.departments.Update(chi.URLParam(r, "id"), caller(r), in); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonMessage(w, "Department updated successfully")
}

// DepartmentDelete removes a department
func (h *Handlers) DepartmentDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.departments.Delete(chi.URLParam(r, "id"), caller(r)); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonMessage(w, "Department deleted successfully")
}

// DepartmentAddJSON attaches a JSON document
func (h *Handlers) DepartmentAddJSON(w http.ResponseWriter, r *http.Request) {
	var req jsonAttachment
	if !h.decode(w, r, &req) {
		return
	}

	v, err := h.departments.AddJSON(chi.URLParam(r, "id"), caller(r), req.JSON)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, departmentResponse{Department: v})
}

// DepartmentAddConnection attaches a connection string
func (h *Handlers) DepartmentAddConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionAttachment
	if !h.decode(w, r, &req) {
		return
	}

	v, err := h.departments.AddConnection(chi.URLParam(r, "id"), caller(r), req.ConnectionString)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, departmentResponse{Department: v})
}
