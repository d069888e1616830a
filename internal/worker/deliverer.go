package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/content"
	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/engine"
	"github.com/Priya8975/campaign-mailer/internal/metrics"
	"github.com/Priya8975/campaign-mailer/internal/queue"
	"github.com/Priya8975/campaign-mailer/internal/transport"
)

type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// DeliveryStore is what a worker writes after a send.
type DeliveryStore interface {
	MarkSent(ctx context.Context, recipientID string, at time.Time) (bool, error)
	RecordEvent(ctx context.Context, e *domain.EmailEvent) error
	Suppress(ctx context.Context, email, reason string) (bool, error)
}

// AckQueue settles claimed jobs.
type AckQueue interface {
	Ack(ctx context.Context, job queue.Job) error
	Retry(ctx context.Context, job queue.Job, delay time.Duration) error
	Defer(ctx context.Context, job queue.Job, delay time.Duration) error
	DeadLetter(ctx context.Context, job queue.Job, cause error, permanent bool) error
}

type DelivererConfig struct {
	// TrackingBaseURL enables open and click tracking when set.
	TrackingBaseURL string
	// DomainRateLimit caps sends per recipient domain per limiter window.
	// Zero disables it.
	DomainRateLimit int
}

// Deliverer personalizes and sends one job, records the result and decides
// whether the job is retried, deferred or abandoned.
type Deliverer struct {
	store     DeliveryStore
	transport transport.Transport
	queue     AckQueue
	audit     *engine.Audit
	notifier  engine.CompletionNotifier
	publisher engine.ProgressPublisher
	breaker   *engine.CircuitBreaker
	limiter   *engine.RateLimiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       DelivererConfig
}

func NewDeliverer(
	store DeliveryStore,
	tr transport.Transport,
	q AckQueue,
	audit *engine.Audit,
	notifier engine.CompletionNotifier,
	m *metrics.Metrics,
	cfg DelivererConfig,
	logger *slog.Logger,
) *Deliverer {
	return &Deliverer{
		store:     store,
		transport: tr,
		queue:     q,
		audit:     audit,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// WithGuards enables the per-domain circuit breaker and rate limiter.
func (d *Deliverer) WithGuards(breaker *engine.CircuitBreaker, limiter *engine.RateLimiter) *Deliverer {
	d.breaker = breaker
	d.limiter = limiter
	return d
}

func (d *Deliverer) WithPublisher(p engine.ProgressPublisher) *Deliverer {
	d.publisher = p
	return d
}

// Process sends one job without touching the queue. A failed send returns
// a *domain.DeliveryError.
func (d *Deliverer) Process(ctx context.Context, job queue.Job) (Outcome, error) {
	data := content.MergeData{
		FirstName: job.Contact.FirstName,
		LastName:  job.Contact.LastName,
		Email:     job.Contact.Email,
	}
	if data.Email == "" {
		data.Email = job.Email
	}

	opts := content.FinalizeOptions{
		UnsubscribeURL: job.UnsubscribeURL,
		CompanyAddress: job.CompanyAddress,
	}
	if d.cfg.TrackingBaseURL != "" {
		opts.Tracking = &content.Tracking{
			BaseURL:     d.cfg.TrackingBaseURL,
			CampaignID:  job.CampaignID,
			RecipientID: job.RecipientID,
		}
	}
	html, err := content.Finalize(content.PersonalizeHTML(job.HTML, data), opts)
	if err != nil {
		return OutcomeFailed, &domain.DeliveryError{RecipientID: job.RecipientID, Attempt: job.Attempt, Permanent: true, Err: err}
	}

	msg := transport.Message{
		To:        job.Email,
		FromName:  job.SenderName,
		FromEmail: job.SenderEmail,
		Subject:   content.Personalize(job.Subject, data),
		HTML:      html,
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + job.UnsubscribeURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
			"X-Campaign-ID":         job.CampaignID,
		},
	}

	messageID, sendErr := d.transport.Send(ctx, msg)

	// The send has happened; record it even when shutdown cancelled ctx.
	ctx = context.WithoutCancel(ctx)
	if sendErr != nil {
		return OutcomeFailed, d.recordFailure(ctx, job, sendErr)
	}

	won, err := d.store.MarkSent(ctx, job.RecipientID, time.Now().UTC())
	if err != nil {
		d.audit.Error(ctx, job.CampaignID, "Email sent but could not be marked as sent", map[string]any{
			"email": job.Email, "error": err.Error(),
		})
		return OutcomeSent, fmt.Errorf("marking recipient %s sent: %w", job.RecipientID, err)
	}
	if !won {
		d.audit.Warn(ctx, job.CampaignID, "Duplicate send: recipient already marked as sent", map[string]any{
			"email": job.Email, "message_id": messageID,
		})
		return OutcomeDuplicate, nil
	}

	if err := d.store.RecordEvent(ctx, &domain.EmailEvent{
		CampaignID:     job.CampaignID,
		RecipientEmail: job.Email,
		Type:           domain.EventSent,
		Metadata:       map[string]any{"message_id": messageID},
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		d.logger.Error("failed to record sent event", "error", err, "campaign_id", job.CampaignID, "email", job.Email)
	}
	d.audit.Info(ctx, job.CampaignID, "Email sent", map[string]any{"email": job.Email, "message_id": messageID})
	return OutcomeSent, nil
}

func (d *Deliverer) recordFailure(ctx context.Context, job queue.Job, sendErr error) error {
	if err := d.store.RecordEvent(ctx, &domain.EmailEvent{
		CampaignID:     job.CampaignID,
		RecipientEmail: job.Email,
		Type:           domain.EventBounced,
		Metadata:       map[string]any{"error": sendErr.Error(), "attempt": job.Attempt},
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		d.logger.Error("failed to record bounce event", "error", err, "campaign_id", job.CampaignID, "email", job.Email)
	}
	d.audit.Error(ctx, job.CampaignID, "Email delivery failed", map[string]any{
		"email": job.Email, "attempt": job.Attempt, "error": sendErr.Error(),
	})
	return &domain.DeliveryError{
		RecipientID: job.RecipientID,
		Attempt:     job.Attempt,
		Permanent:   transport.IsPermanent(sendErr),
		Err:         sendErr,
	}
}

// Handle runs a claimed job through the domain guards, Process and the
// job's retry policy, then settles it on the queue.
func (d *Deliverer) Handle(ctx context.Context, job queue.Job) {
	if job.Policy.MaxAttempts == 0 {
		job.Policy = queue.DefaultRetryPolicy()
	}
	mailDomain := engine.MailDomain(job.Email)

	if d.breaker != nil {
		if state, allowed := d.breaker.AllowRequest(ctx, mailDomain); !allowed {
			d.deferJob(ctx, job, mailDomain, "circuit_"+string(state), d.breaker.Cooldown())
			return
		}
	}
	if d.limiter != nil && !d.limiter.Allow(ctx, mailDomain, d.cfg.DomainRateLimit) {
		d.deferJob(ctx, job, mailDomain, "rate_limited", d.limiter.Window())
		return
	}

	start := time.Now()
	outcome, err := d.Process(ctx, job)
	elapsed := time.Since(start)

	interrupted := ctx.Err() != nil
	ctx = context.WithoutCancel(ctx)

	switch outcome {
	case OutcomeSent, OutcomeDuplicate:
		if err != nil {
			d.logger.Error("send succeeded but bookkeeping failed", "error", err, "campaign_id", job.CampaignID, "recipient_id", job.RecipientID)
		}
		if d.breaker != nil {
			d.breaker.RecordSuccess(ctx, mailDomain)
		}
		if outcome == OutcomeDuplicate {
			d.metrics.IncDuplicate()
		} else {
			d.metrics.IncSent(mailDomain, elapsed.Seconds())
		}
		d.settle(d.queue.Ack(ctx, job), job)
		d.publish(domain.ProgressEvent{Type: domain.ProgressSent, CampaignID: job.CampaignID, RecipientID: job.RecipientID, Email: job.Email, Attempt: job.Attempt})
		d.logger.Info("email sent", "campaign_id", job.CampaignID, "recipient_id", job.RecipientID, "attempt", job.Attempt, "outcome", outcome, "duration_ms", elapsed.Milliseconds())
		d.notifier.Notify(job.CampaignID)
		return
	}

	if interrupted {
		// Shutdown cut the send short; try again later without using up
		// an attempt.
		d.settle(d.queue.Defer(ctx, job, 0), job)
		d.logger.Warn("delivery interrupted by shutdown", "campaign_id", job.CampaignID, "recipient_id", job.RecipientID, "error", err)
		return
	}

	var de *domain.DeliveryError
	permanent := errors.As(err, &de) && de.Permanent
	d.metrics.IncFailed(mailDomain, permanent, elapsed.Seconds())
	if !permanent && d.breaker != nil {
		d.breaker.RecordFailure(ctx, mailDomain)
	}

	if !permanent && job.Policy.ShouldRetry(job.Attempt) {
		delay := job.Policy.Delay(job.Attempt)
		d.settle(d.queue.Retry(ctx, job, delay), job)
		d.publish(domain.ProgressEvent{Type: domain.ProgressRetrying, CampaignID: job.CampaignID, RecipientID: job.RecipientID, Email: job.Email, Attempt: job.Attempt, Error: err.Error()})
		d.logger.Warn("delivery failed, scheduling retry",
			"campaign_id", job.CampaignID,
			"recipient_id", job.RecipientID,
			"attempt", job.Attempt,
			"max_attempts", job.Policy.MaxAttempts,
			"retry_in", delay,
			"error", err,
		)
		return
	}

	d.abandon(ctx, job, err, permanent)
}

// abandon dead-letters the job. The recipient stays unsent.
func (d *Deliverer) abandon(ctx context.Context, job queue.Job, cause error, permanent bool) {
	d.settle(d.queue.DeadLetter(ctx, job, cause, permanent), job)
	d.metrics.IncAbandoned(engine.MailDomain(job.Email))

	if permanent {
		if _, err := d.store.Suppress(ctx, domain.NormalizeEmail(job.Email), domain.SuppressionHardBounce); err != nil {
			d.logger.Error("failed to suppress hard bounce", "error", err, "email", job.Email)
		}
	}

	d.audit.Warn(ctx, job.CampaignID, "Delivery abandoned", map[string]any{
		"email":     job.Email,
		"attempts":  job.Attempt,
		"permanent": permanent,
		"error":     cause.Error(),
	})
	d.publish(domain.ProgressEvent{Type: domain.ProgressAbandoned, CampaignID: job.CampaignID, RecipientID: job.RecipientID, Email: job.Email, Attempt: job.Attempt, Error: cause.Error()})
	d.logger.Warn("delivery abandoned",
		"campaign_id", job.CampaignID,
		"recipient_id", job.RecipientID,
		"attempts", job.Attempt,
		"permanent", permanent,
		"error", cause,
	)
	d.notifier.Notify(job.CampaignID)
}

func (d *Deliverer) deferJob(ctx context.Context, job queue.Job, mailDomain, reason string, delay time.Duration) {
	d.metrics.IncDeferred(mailDomain, reason)
	d.settle(d.queue.Defer(ctx, job, delay), job)
	d.logger.Debug("delivery deferred", "campaign_id", job.CampaignID, "mail_domain", mailDomain, "reason", reason, "delay", delay)
}

// settle logs queue bookkeeping errors; the job's lease brings it back.
func (d *Deliverer) settle(err error, job queue.Job) {
	if err != nil {
		d.logger.Error("failed to update job in queue", "error", err, "job_id", job.ID())
	}
}

func (d *Deliverer) publish(e domain.ProgressEvent) {
	if d.publisher == nil {
		return
	}
	e.Timestamp = time.Now().UTC()
	d.publisher.Publish(e)
}
