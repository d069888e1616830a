package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

type TrackingStore interface {
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)
	RecordEvent(ctx context.Context, e *domain.EmailEvent) error
}

// Tracker turns open-pixel and click-redirect hits into OPENED and CLICKED
// events. Hits that do not name a recipient of the campaign are ignored.
type Tracker struct {
	store  TrackingStore
	logger *slog.Logger
}

func NewTracker(store TrackingStore, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

func (t *Tracker) RecordOpen(ctx context.Context, campaignID, recipientID string) error {
	return t.record(ctx, campaignID, recipientID, domain.EventOpened, nil)
}

// RecordClick records the click and returns the URL to redirect to. Only
// absolute http(s) targets are accepted.
func (t *Tracker) RecordClick(ctx context.Context, campaignID, recipientID, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.NewValidationError("url", "invalid redirect target")
	}
	if err := t.record(ctx, campaignID, recipientID, domain.EventClicked, map[string]any{"url": target}); err != nil {
		return "", err
	}
	return u.String(), nil
}

func (t *Tracker) record(ctx context.Context, campaignID, recipientID string, typ domain.EventType, meta map[string]any) error {
	r, err := t.store.GetRecipient(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("loading recipient: %w", err)
	}
	if r == nil || r.CampaignID != campaignID {
		t.logger.Debug("ignoring tracking hit", "campaign_id", campaignID, "recipient_id", recipientID, "type", typ)
		return nil
	}

	err = t.store.RecordEvent(ctx, &domain.EmailEvent{
		CampaignID:     campaignID,
		RecipientEmail: r.Email,
		Type:           typ,
		Metadata:       meta,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("recording %s event: %w", typ, err)
	}
	return nil
}
