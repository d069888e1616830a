package api

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/engine"
)

type SuppressionHandler struct {
	filter    *engine.SuppressionFilter
	campaigns *engine.CampaignService
	logger    *slog.Logger
}

func NewSuppressionHandler(f *engine.SuppressionFilter, c *engine.CampaignService, logger *slog.Logger) *SuppressionHandler {
	return &SuppressionHandler{filter: f, campaigns: c, logger: logger}
}

type suppressRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type suppressResponse struct {
	Email   string `json:"email"`
	Created bool   `json:"created"`
}

// Create suppresses an address. Bounce and complaint webhooks post here;
// reason "unsubscribe" goes through the full unsubscribe path.
func (h *SuppressionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req suppressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reason := req.Reason
	switch reason {
	case "", "manual":
		reason = domain.SuppressionManual
	case "unsubscribe":
		if err := h.campaigns.Unsubscribe(r.Context(), req.Email, ""); err != nil {
			respondServiceError(w, h.logger, err, "failed to unsubscribe")
			return
		}
		respondJSON(w, http.StatusOK, suppressResponse{Email: domain.NormalizeEmail(req.Email)})
		return
	case "bounce", domain.SuppressionHardBounce:
		reason = domain.SuppressionHardBounce
	case "complaint", domain.SuppressionComplaint:
		reason = domain.SuppressionComplaint
	}

	created, err := h.filter.Suppress(r.Context(), req.Email, reason)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to suppress address")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, suppressResponse{Email: domain.NormalizeEmail(req.Email), Created: created})
}

func (h *SuppressionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}

	entries, err := h.filter.List(r.Context(), limit)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list suppressions")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

var unsubscribedPage = template.Must(template.New("unsubscribed").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Unsubscribed</title></head>
<body style="font-family: Arial, sans-serif; text-align: center; padding: 60px;">
<h1>You have been unsubscribed</h1>
<p>{{.}} will no longer receive these emails.</p>
</body></html>`))

// Unsubscribe serves the link in every campaign email. GET renders a
// confirmation page; POST is the RFC 8058 one-click variant.
func (h *SuppressionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("test") == "true" {
		respondJSON(w, http.StatusOK, map[string]string{"message": "test email, nothing to do"})
		return
	}
	email := q.Get("email")

	if err := h.campaigns.Unsubscribe(r.Context(), email, q.Get("campaignId")); err != nil {
		respondServiceError(w, h.logger, err, "failed to unsubscribe")
		return
	}

	if r.Method == http.MethodPost {
		respondJSON(w, http.StatusOK, map[string]string{"message": "unsubscribed"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	unsubscribedPage.Execute(w, domain.NormalizeEmail(email))
}
