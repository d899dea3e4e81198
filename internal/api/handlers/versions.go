package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/promptvault/promptvault/internal/lifecycle"
	"github.com/promptvault/promptvault/internal/semver"
	"github.com/promptvault/promptvault/internal/validate"
)

type VersionHandler struct {
	svc *lifecycle.Service
}

func NewVersionHandler(svc *lifecycle.Service) *VersionHandler {
	return &VersionHandler{svc: svc}
}

func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}

	versions, err := h.svc.ListVersions(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions, "count": len(versions)})
}

func (h *VersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}
	number := chi.URLParam(r, "version")
	if !semver.IsValid(number) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid version number"})
		return
	}

	v, err := h.svc.GetVersion(r.Context(), id, number)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, v)
}

func (h *VersionHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}
	number := chi.URLParam(r, "version")
	if !semver.IsValid(number) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid version number"})
		return
	}

	var req validate.RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeAppError(w, err)
		return
	}

	v, err := h.svc.Rollback(r.Context(), id, number, req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, v)
}
