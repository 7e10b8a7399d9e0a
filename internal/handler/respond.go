package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kiwari-pos/catering/internal/enum"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseLocation normalises a location path or body value.
func parseLocation(s string) enum.Location {
	return enum.Location(strings.ToUpper(strings.TrimSpace(s)))
}
