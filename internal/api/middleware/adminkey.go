package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// AdminKey guards mutating administrative routes with the single shared
// secret. An unset secret is a deployment error: requests fail closed with
// 500 rather than letting every caller through.
func AdminKey(headerName, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				slog.Error("admin key not configured, rejecting request", "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "server misconfigured")
				return
			}

			key := r.Header.Get(headerName)
			if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
