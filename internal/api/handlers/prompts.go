package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/promptvault/promptvault/internal/apperrors"
	"github.com/promptvault/promptvault/internal/lifecycle"
	"github.com/promptvault/promptvault/internal/query"
	"github.com/promptvault/promptvault/internal/validate"
)

type PromptHandler struct {
	svc   *lifecycle.Service
	reads *query.Service
}

func NewPromptHandler(svc *lifecycle.Service, reads *query.Service) *PromptHandler {
	return &PromptHandler{svc: svc, reads: reads}
}

func (h *PromptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req validate.CreatePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeAppError(w, err)
		return
	}

	p, v, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"prompt": p, "version": v})
}

func (h *PromptHandler) Search(w http.ResponseWriter, r *http.Request) {
	q, err := validate.ParseSearchQuery(r.URL.Query())
	if err != nil {
		writeAppError(w, err)
		return
	}

	result, err := h.reads.Search(r.Context(), q)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *PromptHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// Update handles PUT /prompts/{id}. A body carrying content or bump_type is
// a version bump; anything else is a metadata patch.
func (h *PromptHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	body, _ := json.Marshal(raw)

	_, hasContent := raw["content"]
	_, hasBump := raw["bump_type"]
	if hasContent || hasBump {
		var req validate.CreateVersionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			writeAppError(w, err)
			return
		}
		v, err := h.svc.CreateVersion(r.Context(), id, req)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
		return
	}

	var req validate.UpdateMetadataRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	if req.Empty() {
		writeAppError(w, apperrors.Validation("body", "no fields to update"))
		return
	}

	p, err := h.svc.UpdateMetadata(r.Context(), id, req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PromptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}
	hard := r.URL.Query().Get("hard") == "true"

	if err := h.svc.Delete(r.Context(), id, hard); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "hard": hard})
}

func (h *PromptHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}

	var req validate.StatusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeAppError(w, err)
		return
	}

	from, to, err := h.svc.ChangeStatus(r.Context(), id, req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"from": string(from), "to": string(to)})
}

func promptID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid prompt ID"})
		return uuid.Nil, false
	}
	return id, true
}
