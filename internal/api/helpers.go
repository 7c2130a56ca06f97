package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

// WriteJSONResponse encodes v as JSON and writes it with a 200 status.
// Encoding happens into a buffer first so a marshalling failure never
// produces a partial response body. Returns false when the response could
// not be written.
func WriteJSONResponse(w http.ResponseWriter, v interface{}) bool {
	body, err := json.Marshal(v)
	if err != nil {
		log.Printf("API: Failed to encode JSON response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		log.Printf("API: Failed to write JSON response: %v", err)
		return false
	}
	return true
}

// WriteJSONError writes a JSON error body {"error": msg} with the given status.
func WriteJSONError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ParseLimitParam parses the "limit" query parameter, falling back to
// defaultLimit when it is missing or invalid.
func ParseLimitParam(r *http.Request, defaultLimit int) int {
	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

// ParseBoolParam parses a boolean query parameter, treating "1", "true" and
// "yes" (case-insensitive via ParseBool where applicable) as true.
func ParseBoolParam(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return v == "yes"
	}
	return parsed
}
