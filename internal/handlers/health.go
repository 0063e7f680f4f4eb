package handlers

import "net/http"

// Healthy reports process liveness.
func Healthy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Healthy"})
}
