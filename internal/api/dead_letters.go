package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

type DeadLetterLister interface {
	DeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}

type DeadLetterHandler struct {
	queue  DeadLetterLister
	logger *slog.Logger
}

func NewDeadLetterHandler(q DeadLetterLister, logger *slog.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{queue: q, logger: logger}
}

// List returns abandoned jobs, newest first. campaign_id narrows the list.
func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}

	letters, err := h.queue.DeadLetters(r.Context(), limit)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list dead letters")
		return
	}

	if campaignID := r.URL.Query().Get("campaign_id"); campaignID != "" {
		filtered := letters[:0]
		for _, dl := range letters {
			if dl.CampaignID == campaignID {
				filtered = append(filtered, dl)
			}
		}
		letters = filtered
	}
	respondJSON(w, http.StatusOK, letters)
}
