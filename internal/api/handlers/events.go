package handlers

import (
	"net/http"

	"github.com/promptvault/promptvault/internal/lifecycle"
	"github.com/promptvault/promptvault/internal/validate"
)

type EventHandler struct {
	svc *lifecycle.Service
}

func NewEventHandler(svc *lifecycle.Service) *EventHandler {
	return &EventHandler{svc: svc}
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := promptID(w, r)
	if !ok {
		return
	}
	limit, offset, err := validate.ParseEventsQuery(r.URL.Query())
	if err != nil {
		writeAppError(w, err)
		return
	}

	events, total, err := h.svc.ListEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":   events,
		"total":    total,
		"has_more": offset+limit < total,
	})
}
