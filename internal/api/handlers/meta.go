package handlers

import (
	"net/http"

	"github.com/promptvault/promptvault/internal/query"
	"github.com/promptvault/promptvault/internal/store"
)

// MetaHandler serves the tag and purpose aggregations the dashboard's
// filter dropdowns are built from.
type MetaHandler struct {
	reads *query.Service
}

func NewMetaHandler(reads *query.Service) *MetaHandler {
	return &MetaHandler{reads: reads}
}

func (h *MetaHandler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.reads.Tags(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if tags == nil {
		tags = []store.TagCount{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

func (h *MetaHandler) Purposes(w http.ResponseWriter, r *http.Request) {
	purposes, err := h.reads.Purposes(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if purposes == nil {
		purposes = []store.PurposeCount{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"purposes": purposes})
}
