package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/valmeida/chatvault/internal/classifier"
	"github.com/valmeida/chatvault/internal/database"
	"github.com/valmeida/chatvault/internal/ingest"
)

// errorResponse is the fixed error body shape.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response body", "error", err)
	}
}

// writeError maps service errors onto the HTTP taxonomy: validation 400,
// not-found 404, upstream classifier 502, everything else 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ingest.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, classifier.ErrUpstream):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	}
	writeJSON(w, logger, status, errorResponse{Success: false, Error: err.Error()})
}
