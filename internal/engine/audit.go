package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/metrics"
)

const maxRecentLogs = 100

// Audit appends human-readable entries to a campaign's log. Writing an entry
// never fails the operation that produced it.
type Audit struct {
	store   LogStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAudit(store LogStore, logger *slog.Logger, m *metrics.Metrics) *Audit {
	return &Audit{store: store, logger: logger, metrics: m}
}

func (a *Audit) Record(ctx context.Context, campaignID string, level domain.LogLevel, message string, metadata map[string]any) {
	entry := &domain.CampaignLog{
		CampaignID: campaignID,
		Level:      level,
		Message:    message,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.store.AppendLog(ctx, entry); err != nil {
		a.metrics.IncAuditFailure()
		a.logger.Error("failed to write campaign log",
			"error", err,
			"campaign_id", campaignID,
			"level", level,
			"message", message,
		)
	}
}

func (a *Audit) Info(ctx context.Context, campaignID, message string, metadata map[string]any) {
	a.Record(ctx, campaignID, domain.LogInfo, message, metadata)
}

func (a *Audit) Warn(ctx context.Context, campaignID, message string, metadata map[string]any) {
	a.Record(ctx, campaignID, domain.LogWarn, message, metadata)
}

func (a *Audit) Error(ctx context.Context, campaignID, message string, metadata map[string]any) {
	a.Record(ctx, campaignID, domain.LogError, message, metadata)
}

// Recent returns the latest entries for a campaign, newest first.
func (a *Audit) Recent(ctx context.Context, campaignID string) ([]domain.CampaignLog, error) {
	return a.store.RecentLogs(ctx, campaignID, maxRecentLogs)
}
