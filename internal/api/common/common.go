// Package common holds response helpers shared by the API handlers.
package common

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// MessageResponse is the envelope of every action endpoint
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WriteErrorResponse writes a {"success": false, "message": ...} response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, MessageResponse{Message: message}, statusCode)
}
