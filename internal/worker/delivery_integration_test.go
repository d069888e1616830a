package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/content"
	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/engine"
	"github.com/Priya8975/campaign-mailer/internal/metrics"
	"github.com/Priya8975/campaign-mailer/internal/queue"
	"github.com/Priya8975/campaign-mailer/internal/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// pipeline wires the whole send path against miniredis and the memory store.
type pipeline struct {
	store      *memory.Store
	queue      *queue.RedisQueue
	transport  *scriptedTransport
	service    *engine.CampaignService
	dispatcher *engine.Dispatcher
	owner      domain.Owner
	cancel     context.CancelFunc
	done       sync.WaitGroup
}

func startPipeline(t *testing.T, policy queue.RetryPolicy) *pipeline {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := testLogger()
	st := memory.New()
	m := metrics.New()
	q := queue.NewRedisQueue(client, logger)
	audit := engine.NewAudit(st, logger, m)
	reconciler := engine.NewReconciler(st, audit, nil, m, logger)
	filter := engine.NewSuppressionFilter(st, logger)
	renderer := content.NewBlockRenderer("https://assets.example.com")
	tr := newScriptedTransport()

	dispatcher := engine.NewDispatcher(st, q, filter, renderer, audit, reconciler, m,
		engine.DispatcherConfig{PublicURL: "https://app.example.com", Policy: policy}, logger)
	service := engine.NewCampaignService(st, engine.NewResolver(st), filter, dispatcher, renderer, tr, audit, "https://app.example.com", logger)

	deliverer := NewDeliverer(st, tr, q, audit, reconciler, m, DelivererConfig{}, logger)
	pool := NewPool(4, deliverer, logger)
	poller := NewPoller(q, pool, m, logger).WithIntervals(10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	p := &pipeline{
		store:      st,
		queue:      q,
		transport:  tr,
		service:    service,
		dispatcher: dispatcher,
		owner:      st.AddOwner(domain.Owner{CompanyName: "Acme", CompanyAddress: "1 Main St"}),
		cancel:     cancel,
	}

	pool.Start(ctx)
	p.done.Add(2)
	go func() { defer p.done.Done(); poller.Start(ctx) }()
	go func() { defer p.done.Done(); reconciler.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		p.done.Wait()
		pool.Stop()
	})
	return p
}

func (p *pipeline) campaign(t *testing.T, emails ...string) *domain.Campaign {
	t.Helper()
	tag := p.store.AddTag(domain.Tag{OwnerID: p.owner.ID, Name: "all"})
	for _, email := range emails {
		p.store.AddContact(domain.Contact{OwnerID: p.owner.ID, Email: email, FirstName: "Pat", TagIDs: []string{tag.ID}})
	}
	c, err := p.service.Create(context.Background(), p.owner.ID, domain.CreateCampaignRequest{
		Name:        "Launch",
		Subject:     "News for {FirstName}",
		SenderName:  "Acme",
		SenderEmail: "news@acme.example",
		Content:     json.RawMessage(`{"body":{"blocks":[{"type":"text","data":{"text":"Hello {FirstName}"}}]}}`),
		TagIDs:      []string{tag.ID},
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPipeline_SkipsSuppressedAndCompletes(t *testing.T) {
	p := startPipeline(t, noDelay(3))
	ctx := context.Background()
	c := p.campaign(t, "a@example.com", "b@example.com", "c@example.com")
	p.store.Suppress(ctx, "b@example.com", domain.SuppressionManual)

	if _, err := p.service.SendNow(ctx, p.owner.ID, c.ID); err != nil {
		t.Fatalf("SendNow() error: %v", err)
	}

	waitFor(t, "campaign to be sent", func() bool {
		got, _ := p.store.GetCampaign(ctx, c.ID)
		return got.Status == domain.CampaignSent
	})

	got, _ := p.store.GetCampaign(ctx, c.ID)
	if got.SentAt == nil {
		t.Error("sentAt should be stamped on completion")
	}
	if n := p.transport.attemptsFor("b@example.com"); n != 0 {
		t.Errorf("suppressed address got %d attempts", n)
	}
	msgs := p.transport.messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.Subject != "News for Pat" {
			t.Errorf("subject = %q", m.Subject)
		}
	}
	total, sent, _ := p.store.CountRecipients(ctx, c.ID)
	if total != 2 || sent != 2 {
		t.Errorf("total/sent = %d/%d, want 2/2", total, sent)
	}
}

func TestPipeline_ExhaustedRecipientKeepsCampaignSending(t *testing.T) {
	p := startPipeline(t, noDelay(3))
	ctx := context.Background()
	c := p.campaign(t, "ok@example.com", "down@broken.example")
	p.transport.failures["down@broken.example"] = errors.New("connection refused")

	if _, err := p.service.SendNow(ctx, p.owner.ID, c.ID); err != nil {
		t.Fatalf("SendNow() error: %v", err)
	}

	waitFor(t, "dead letter", func() bool {
		stats, _ := p.queue.Stats(ctx)
		return stats.DeadLetters == 1 && stats.Ready == 0 && stats.InFlight == 0
	})

	if n := p.transport.attemptsFor("down@broken.example"); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	if n := p.transport.attemptsFor("ok@example.com"); n != 1 {
		t.Errorf("healthy recipient attempts = %d, want 1", n)
	}
	got, _ := p.store.GetCampaign(ctx, c.ID)
	if got.Status != domain.CampaignSending {
		t.Errorf("status = %s, want SENDING", got.Status)
	}
	if n, _ := p.store.CountEventsForRecipient(ctx, c.ID, "down@broken.example", domain.EventBounced); n != 3 {
		t.Errorf("BOUNCED events = %d, want one per attempt", n)
	}
}

func TestPipeline_ResendAfterCompletionIsRejected(t *testing.T) {
	p := startPipeline(t, noDelay(3))
	ctx := context.Background()
	c := p.campaign(t, "a@example.com")

	p.service.SendNow(ctx, p.owner.ID, c.ID)
	waitFor(t, "campaign to be sent", func() bool {
		got, _ := p.store.GetCampaign(ctx, c.ID)
		return got.Status == domain.CampaignSent
	})

	_, err := p.service.SendNow(ctx, p.owner.ID, c.ID)
	var inv *domain.InvalidStateError
	if !errors.As(err, &inv) {
		t.Fatalf("second SendNow() error = %v, want InvalidStateError", err)
	}
	if n := len(p.transport.messages()); n != 1 {
		t.Errorf("sent %d messages, want 1", n)
	}
}

type countingHandler struct {
	n atomic.Int32
}

func (h *countingHandler) Handle(ctx context.Context, job queue.Job) {
	h.n.Add(1)
}

func TestWorkerPool_ProcessesJobs(t *testing.T) {
	h := &countingHandler{}
	pool := NewPool(3, h, testLogger())
	pool.Start(context.Background())

	for i := 0; i < 10; i++ {
		pool.Submit(queue.Job{CampaignID: "c", RecipientID: string(rune('a' + i))})
	}
	pool.Stop()

	if got := h.n.Load(); got != 10 {
		t.Errorf("handled %d jobs, want 10", got)
	}
}

func TestWorkerPool_Free(t *testing.T) {
	pool := NewPool(2, &countingHandler{}, testLogger())
	if pool.Free() != 4 {
		t.Errorf("Free() = %d, want 4", pool.Free())
	}
	pool.Submit(queue.Job{})
	if pool.Free() != 3 {
		t.Errorf("Free() = %d, want 3", pool.Free())
	}
}

func TestPoller_ClaimsDueJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := testLogger()
	q := queue.NewRedisQueue(client, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &countingHandler{}
	pool := NewPool(2, h, logger)
	pool.Start(ctx)
	poller := NewPoller(q, pool, metrics.New(), logger).WithIntervals(5*time.Millisecond, 5)
	go poller.Start(ctx)

	jobs := make([]queue.Job, 6)
	for i := range jobs {
		jobs[i] = queue.Job{CampaignID: "c1", RecipientID: string(rune('a' + i)), Email: "x@example.com"}
	}
	if _, err := q.Enqueue(ctx, jobs); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	waitFor(t, "jobs to be handled", func() bool { return h.n.Load() == 6 })
	stats, _ := q.Stats(ctx)
	if stats.Ready != 0 {
		t.Errorf("ready = %d, want 0", stats.Ready)
	}
}
