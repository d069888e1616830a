package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondServiceError maps domain errors to their status codes. Anything
// else is logged and reported as a 500 with the fallback message.
func respondServiceError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		forbidden  *domain.ForbiddenError
		invalid    *domain.InvalidStateError
	)
	switch {
	case errors.As(err, &validation):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Message, Field: validation.Field})
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &forbidden):
		respondError(w, http.StatusForbidden, forbidden.Error())
	case errors.As(err, &invalid):
		respondError(w, http.StatusConflict, invalid.Error())
	default:
		logger.Error(fallback, "error", err)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}
