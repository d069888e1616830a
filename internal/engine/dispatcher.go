package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/content"
	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/metrics"
	"github.com/Priya8975/campaign-mailer/internal/queue"
)

// JobQueue is the part of the delivery queue the dispatcher writes to.
type JobQueue interface {
	// Enqueue adds jobs, skipping recipients that already have a pending or
	// in-flight job, and returns the number added.
	Enqueue(ctx context.Context, jobs []queue.Job) (int, error)
}

// CompletionNotifier receives campaigns whose completion should be checked.
type CompletionNotifier interface {
	Notify(campaignID string)
}

type SendAck struct {
	CampaignID string                `json:"campaign_id"`
	Status     domain.CampaignStatus `json:"status"`
	Message    string                `json:"message"`
}

// EnqueueResult summarises one dispatch pass.
type EnqueueResult struct {
	CampaignID    string `json:"campaign_id"`
	Total         int    `json:"total"`
	Unsent        int    `json:"unsent"`
	Enqueued      int    `json:"enqueued"`
	AlreadyQueued int    `json:"already_queued"`
	Suppressed    int    `json:"suppressed"`
}

const enqueueBatchSize = 500

// Dispatcher starts campaign sends and fans each one out into delivery jobs.
type Dispatcher struct {
	store       Store
	queue       JobQueue
	suppression *SuppressionFilter
	renderer    content.Renderer
	audit       *Audit
	notifier    CompletionNotifier
	metrics     *metrics.Metrics
	logger      *slog.Logger

	policy    queue.RetryPolicy
	publicURL string

	passes sync.WaitGroup
}

type DispatcherConfig struct {
	// PublicURL is the base of the unsubscribe page linked from every email.
	PublicURL string
	Policy    queue.RetryPolicy
}

func NewDispatcher(
	store Store,
	q JobQueue,
	suppression *SuppressionFilter,
	renderer content.Renderer,
	audit *Audit,
	notifier CompletionNotifier,
	m *metrics.Metrics,
	cfg DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	policy := cfg.Policy
	if policy.MaxAttempts == 0 {
		policy = queue.DefaultRetryPolicy()
	}
	return &Dispatcher{
		store:       store,
		queue:       q,
		suppression: suppression,
		renderer:    renderer,
		audit:       audit,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		policy:      policy,
		publicURL:   strings.TrimRight(cfg.PublicURL, "/"),
	}
}

// SendNow moves a DRAFT or SCHEDULED campaign to SENDING and starts the
// enqueue pass in the background. The pass outlives ctx; its failures are
// recorded on the campaign and never returned here.
func (d *Dispatcher) SendNow(ctx context.Context, ownerID, campaignID string) (*SendAck, error) {
	c, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil || c.OwnerID != ownerID {
		return nil, domain.NewNotFound("campaign", campaignID)
	}
	if !c.Status.Sendable() {
		return nil, domain.NewInvalidState(campaignID, c.Status, "send")
	}

	ok, err := d.store.TransitionCampaign(ctx, campaignID,
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled},
		domain.CampaignSending, nil)
	if err != nil {
		return nil, fmt.Errorf("starting send: %w", err)
	}
	if !ok {
		// Another caller won the race.
		return nil, domain.NewInvalidState(campaignID, domain.CampaignSending, "send")
	}

	d.audit.Info(ctx, campaignID, "Campaign send initiated", map[string]any{"owner_id": ownerID})
	d.logger.Info("campaign send initiated", "campaign_id", campaignID, "owner_id", ownerID)

	bg := context.WithoutCancel(ctx)
	d.passes.Add(1)
	go func() {
		defer d.passes.Done()
		if _, err := d.Enqueue(bg, campaignID); err != nil {
			d.logger.Error("dispatch pass failed", "error", err, "campaign_id", campaignID)
		}
	}()

	return &SendAck{
		CampaignID: campaignID,
		Status:     domain.CampaignSending,
		Message:    "Campaign is being sent",
	}, nil
}

// Wait blocks until every background pass started by SendNow has returned.
func (d *Dispatcher) Wait() {
	d.passes.Wait()
}

// Enqueue runs one dispatch pass for a SENDING campaign: every unsent,
// unsuppressed recipient gets a delivery job. Running it again for the same
// campaign only adds jobs for recipients that have neither been sent nor
// still have a job in the queue. A failed pass moves the campaign to FAILED.
func (d *Dispatcher) Enqueue(ctx context.Context, campaignID string) (*EnqueueResult, error) {
	c, err := d.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil {
		return nil, domain.NewNotFound("campaign", campaignID)
	}
	if c.Status != domain.CampaignSending {
		return nil, domain.NewInvalidState(campaignID, c.Status, "enqueue")
	}

	res, err := d.enqueue(ctx, c)
	if err != nil {
		d.fail(ctx, campaignID, err)
		return res, &domain.EnqueueError{CampaignID: campaignID, Err: err}
	}
	return res, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, c *domain.Campaign) (*EnqueueResult, error) {
	res := &EnqueueResult{CampaignID: c.ID}

	total, _, err := d.store.CountRecipients(ctx, c.ID)
	if err != nil {
		return res, fmt.Errorf("counting recipients: %w", err)
	}
	res.Total = total
	if total == 0 {
		d.audit.Warn(ctx, c.ID, "No recipients found for campaign", nil)
		d.logger.Warn("campaign has no recipients", "campaign_id", c.ID)
		if _, err := d.store.TransitionCampaign(ctx, c.ID,
			[]domain.CampaignStatus{domain.CampaignSending}, domain.CampaignFailed, nil); err != nil {
			return res, fmt.Errorf("failing empty campaign: %w", err)
		}
		d.metrics.IncDispatchFailure()
		return res, nil
	}

	owner, err := d.store.GetOwner(ctx, c.OwnerID)
	if err != nil {
		return res, fmt.Errorf("loading owner: %w", err)
	}
	if owner == nil {
		return res, errors.New("campaign owner not found")
	}

	html, err := d.render(ctx, c)
	if err != nil {
		return res, err
	}

	suppressed, err := d.suppression.Load(ctx)
	if err != nil {
		return res, err
	}

	unsent, err := d.store.UnsentRecipients(ctx, c.ID)
	if err != nil {
		return res, fmt.Errorf("loading unsent recipients: %w", err)
	}
	res.Unsent = len(unsent)
	if len(unsent) == 0 {
		d.audit.Info(ctx, c.ID, "All recipients already sent", map[string]any{"total": total})
		d.notifier.Notify(c.ID)
		return res, nil
	}

	d.audit.Info(ctx, c.ID, fmt.Sprintf("Found %d unsent recipients, queueing emails", len(unsent)), nil)

	jobs := make([]queue.Job, 0, len(unsent))
	var skipped []string
	for _, r := range unsent {
		if suppressed.IsSuppressed(r.Email) {
			res.Suppressed++
			skipped = append(skipped, r.ID)
			d.audit.Info(ctx, c.ID, "Skipped suppressed email", map[string]any{"email": r.Email})
			continue
		}
		jobs = append(jobs, queue.Job{
			CampaignID:     c.ID,
			RecipientID:    r.ID,
			Email:          r.Email,
			Subject:        c.Subject,
			HTML:           html,
			SenderName:     c.SenderName,
			SenderEmail:    c.SenderEmail,
			UnsubscribeURL: d.unsubscribeURL(r.Email, c.ID),
			CompanyAddress: owner.CompanyAddress,
			Contact: queue.Contact{
				FirstName: r.FirstName,
				LastName:  r.LastName,
				Email:     r.Email,
			},
			Policy: d.policy,
		})
	}

	if len(skipped) > 0 {
		if err := d.store.SkipRecipients(ctx, skipped, time.Now().UTC()); err != nil {
			return res, fmt.Errorf("skipping suppressed recipients: %w", err)
		}
	}

	for start := 0; start < len(jobs); start += enqueueBatchSize {
		end := min(start+enqueueBatchSize, len(jobs))
		n, err := d.queue.Enqueue(ctx, jobs[start:end])
		res.Enqueued += n
		res.AlreadyQueued += (end - start) - n
		if err != nil {
			return res, fmt.Errorf("queueing jobs: %w", err)
		}
	}
	d.metrics.AddEnqueued(res.Enqueued)
	d.metrics.AddSuppressed(res.Suppressed)

	d.audit.Info(ctx, c.ID,
		fmt.Sprintf("Queued %d emails (%d suppressed)", res.Enqueued, res.Suppressed),
		map[string]any{
			"enqueued":       res.Enqueued,
			"suppressed":     res.Suppressed,
			"already_queued": res.AlreadyQueued,
		})
	d.logger.Info("campaign enqueued",
		"campaign_id", c.ID,
		"enqueued", res.Enqueued,
		"suppressed", res.Suppressed,
		"already_queued", res.AlreadyQueued,
	)

	if len(jobs) > 0 {
		return res, nil
	}

	// Nothing was queued. Either everything left is suppressed, leaving no
	// eligible recipient at all, or earlier passes already sent the rest.
	eligible, _, err := d.store.CountRecipients(ctx, c.ID)
	if err != nil {
		return res, fmt.Errorf("counting recipients: %w", err)
	}
	if eligible == 0 {
		d.audit.Warn(ctx, c.ID, "No eligible recipients: all suppressed", map[string]any{"suppressed": res.Suppressed})
		if _, err := d.store.TransitionCampaign(ctx, c.ID,
			[]domain.CampaignStatus{domain.CampaignSending}, domain.CampaignFailed, nil); err != nil {
			return res, fmt.Errorf("failing suppressed campaign: %w", err)
		}
		d.metrics.IncDispatchFailure()
		return res, nil
	}
	d.notifier.Notify(c.ID)
	return res, nil
}

// render produces the campaign skeleton shared by every recipient.
func (d *Dispatcher) render(ctx context.Context, c *domain.Campaign) (string, error) {
	parsed, err := content.Parse(c.Content)
	if err != nil {
		return "", fmt.Errorf("parsing content: %w", err)
	}

	var tmpl string
	if c.TemplateID != nil && *c.TemplateID != "" {
		t, err := d.store.GetTemplate(ctx, *c.TemplateID)
		if err != nil {
			return "", fmt.Errorf("loading template: %w", err)
		}
		if t == nil {
			return "", fmt.Errorf("template %s not found", *c.TemplateID)
		}
		tmpl = t.HTML
	}

	html, err := d.renderer.Render(ctx, parsed, tmpl)
	if err != nil {
		return "", fmt.Errorf("rendering content: %w", err)
	}
	return html, nil
}

func (d *Dispatcher) unsubscribeURL(email, campaignID string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("campaignId", campaignID)
	return d.publicURL + "/unsubscribe?" + q.Encode()
}

// fail moves the campaign to FAILED. Jobs queued before the error keep
// running.
func (d *Dispatcher) fail(ctx context.Context, campaignID string, cause error) {
	d.metrics.IncDispatchFailure()
	d.audit.Error(ctx, campaignID, "Error queueing emails: "+cause.Error(), map[string]any{"error": cause.Error()})

	if _, err := d.store.TransitionCampaign(ctx, campaignID,
		[]domain.CampaignStatus{domain.CampaignSending}, domain.CampaignFailed, nil); err != nil {
		d.logger.Error("failed to mark campaign failed", "error", err, "campaign_id", campaignID)
	}
}
