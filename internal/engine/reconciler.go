package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/metrics"
)

// ProgressPublisher fans live campaign updates out to dashboards.
type ProgressPublisher interface {
	Publish(event domain.ProgressEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.ProgressEvent) {}

// Reconciler is the only writer of the SENDING -> SENT transition. Workers
// call Notify after each job outcome and a single Run loop recomputes the
// campaign's state from durable recipient counts.
type Reconciler struct {
	store     Store
	audit     *Audit
	publisher ProgressPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	stopped bool
	wake    chan struct{}
}

func NewReconciler(store Store, audit *Audit, publisher ProgressPublisher, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Reconciler{
		store:     store,
		audit:     audit,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		pending:   make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// Notify schedules a completion check. Notifications for the same campaign
// that arrive before the check runs are coalesced. While Run is active it
// never blocks; after Run has stopped the check runs inline so that jobs
// finishing during shutdown still complete their campaign.
func (r *Reconciler) Notify(campaignID string) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		if _, err := r.CheckCompletion(context.Background(), campaignID); err != nil {
			r.logger.Error("completion check failed", "error", err, "campaign_id", campaignID)
		}
		return
	}
	r.pending[campaignID] = struct{}{}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run consumes notifications until ctx is cancelled, then drains what is
// still pending.
func (r *Reconciler) Run(ctx context.Context) {
	r.mu.Lock()
	r.stopped = false
	r.mu.Unlock()

	r.logger.Info("completion reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.stopped = true
			r.mu.Unlock()
			r.drain(context.WithoutCancel(ctx))
			r.logger.Info("completion reconciler stopped")
			return
		case <-r.wake:
			r.drain(ctx)
		}
	}
}

func (r *Reconciler) drain(ctx context.Context) {
	r.mu.Lock()
	batch := r.pending
	r.pending = make(map[string]struct{})
	r.mu.Unlock()

	for id := range batch {
		if _, err := r.CheckCompletion(ctx, id); err != nil {
			r.logger.Error("completion check failed", "error", err, "campaign_id", id)
		}
	}
}

// CheckCompletion moves a SENDING campaign to SENT once every recipient has
// been sent. Recipients whose delivery was abandoned keep the campaign in
// SENDING. It reports whether this call made the transition.
func (r *Reconciler) CheckCompletion(ctx context.Context, campaignID string) (bool, error) {
	c, err := r.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return false, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil || c.Status != domain.CampaignSending {
		return false, nil
	}

	total, sent, err := r.store.CountRecipients(ctx, campaignID)
	if err != nil {
		return false, fmt.Errorf("counting recipients: %w", err)
	}
	if total == 0 || sent < total {
		return false, nil
	}

	now := time.Now().UTC()
	ok, err := r.store.TransitionCampaign(ctx, campaignID,
		[]domain.CampaignStatus{domain.CampaignSending}, domain.CampaignSent, &now)
	if err != nil {
		return false, fmt.Errorf("completing campaign: %w", err)
	}
	if !ok {
		return false, nil
	}

	r.metrics.IncCompleted()
	r.audit.Info(ctx, campaignID,
		fmt.Sprintf("Campaign completed: %d of %d recipients sent", sent, total),
		map[string]any{"total": total, "sent": sent})
	r.logger.Info("campaign completed", "campaign_id", campaignID, "total", total, "sent", sent)
	r.publisher.Publish(domain.ProgressEvent{
		Type:       domain.ProgressCompleted,
		CampaignID: campaignID,
		Status:     domain.CampaignSent,
		Sent:       sent,
		Total:      total,
		Timestamp:  now,
	})
	return true, nil
}
