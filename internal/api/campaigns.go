package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/engine"
	"github.com/go-chi/chi/v5"
)

type CampaignHandler struct {
	service *engine.CampaignService
	logger  *slog.Logger
}

func NewCampaignHandler(s *engine.CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{service: s, logger: logger}
}

func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.CampaignStatus(strings.ToUpper(r.URL.Query().Get("status")))
	campaigns, err := h.service.List(r.Context(), ownerID(r), status)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list campaigns")
		return
	}
	respondJSON(w, http.StatusOK, campaigns)
}

func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.service.Create(r.Context(), ownerID(r), req)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to create campaign")
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to get campaign")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CampaignHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.service.Update(r.Context(), ownerID(r), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to update campaign")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CampaignHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), ownerID(r), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, h.logger, err, "failed to delete campaign")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CampaignHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Stats(r.Context(), ownerID(r))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to get campaign stats")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// Send starts delivery and answers before any email goes out.
func (h *CampaignHandler) Send(w http.ResponseWriter, r *http.Request) {
	ack, err := h.service.SendNow(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to send campaign")
		return
	}
	respondJSON(w, http.StatusAccepted, ack)
}

func (h *CampaignHandler) Preview(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Preview(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to preview campaign")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type sendTestRequest struct {
	Email string `json:"email"`
}

func (h *CampaignHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	var req sendTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.SendTest(r.Context(), ownerID(r), chi.URLParam(r, "id"), req.Email); err != nil {
		respondServiceError(w, h.logger, err, "failed to send test email")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Test email sent to " + req.Email})
}

func (h *CampaignHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Analytics(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to get analytics")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (h *CampaignHandler) Logs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.Logs(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to get campaign logs")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (h *CampaignHandler) MergeTags(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.MergeTags())
}
