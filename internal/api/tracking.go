package api

import (
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/Priya8975/campaign-mailer/internal/engine"
)

var pixelGIF, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

type TrackingHandler struct {
	tracker *engine.Tracker
	logger  *slog.Logger
}

func NewTrackingHandler(t *engine.Tracker, logger *slog.Logger) *TrackingHandler {
	return &TrackingHandler{tracker: t, logger: logger}
}

// Open always answers with the pixel; recording is best effort.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.tracker.RecordOpen(r.Context(), q.Get("cid"), q.Get("rid")); err != nil {
		h.logger.Error("failed to record open", "error", err, "campaign_id", q.Get("cid"))
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(pixelGIF)
}

func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := h.tracker.RecordClick(r.Context(), q.Get("cid"), q.Get("rid"), q.Get("url"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to record click")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}
