package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/promptvault/promptvault/internal/apperrors"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeAppError maps a taxonomy error to its HTTP status. Store and
// unclassified failures are logged here and surfaced as a generic message.
func writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": apperrors.ClientMessage(err)})
}
