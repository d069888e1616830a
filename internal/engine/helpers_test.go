package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/content"
	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/metrics"
	"github.com/Priya8975/campaign-mailer/internal/queue"
	"github.com/Priya8975/campaign-mailer/internal/store/memory"
	"github.com/Priya8975/campaign-mailer/internal/transport"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// recordingNotifier collects Notify calls instead of running checks.
type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) Notify(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, id)
}

func (n *recordingNotifier) calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.ids...)
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []transport.Message
	err  error
}

func (t *recordingTransport) Send(ctx context.Context, msg transport.Message) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return "", t.err
	}
	t.sent = append(t.sent, msg)
	return "<test@local>", nil
}

type testEnv struct {
	store      *memory.Store
	queue      *queue.RedisQueue
	mr         *miniredis.Miniredis
	metrics    *metrics.Metrics
	audit      *Audit
	notifier   *recordingNotifier
	dispatcher *Dispatcher
	service    *CampaignService
	transport  *recordingTransport
	owner      domain.Owner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := testLogger()
	st := memory.New()
	m := metrics.New()
	q := queue.NewRedisQueue(client, logger)
	audit := NewAudit(st, logger, m)
	notifier := &recordingNotifier{}
	filter := NewSuppressionFilter(st, logger)
	renderer := content.NewBlockRenderer("https://assets.example.com")

	d := NewDispatcher(st, q, filter, renderer, audit, notifier, m,
		DispatcherConfig{PublicURL: "https://app.example.com", Policy: queue.DefaultRetryPolicy()}, logger)
	tr := &recordingTransport{}
	svc := NewCampaignService(st, NewResolver(st), filter, d, renderer, tr, audit, "https://app.example.com", logger)

	return &testEnv{
		store:      st,
		queue:      q,
		mr:         mr,
		metrics:    m,
		audit:      audit,
		notifier:   notifier,
		dispatcher: d,
		service:    svc,
		transport:  tr,
		owner:      st.AddOwner(domain.Owner{CompanyName: "Acme", CompanyAddress: "1 Main St"}),
	}
}

var testContent = json.RawMessage(`{"body":{"blocks":[{"type":"heading","data":{"text":"Hi {FirstName}"}},{"type":"button","data":{"text":"Shop","url":"https://shop.example.com"}}]}}`)

// seedCampaign creates a campaign for the env owner whose audience is the
// given emails, all tagged with one tag.
func (e *testEnv) seedCampaign(t *testing.T, emails ...string) *domain.Campaign {
	t.Helper()
	tag := e.store.AddTag(domain.Tag{OwnerID: e.owner.ID, Name: "newsletter"})
	for i, email := range emails {
		e.store.AddContact(domain.Contact{
			OwnerID:   e.owner.ID,
			Email:     email,
			FirstName: "User",
			TagIDs:    []string{tag.ID},
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		})
	}

	c, err := e.service.Create(context.Background(), e.owner.ID, domain.CreateCampaignRequest{
		Name:        "Spring sale",
		Subject:     "Hello {FirstName}",
		SenderName:  "Acme",
		SenderEmail: "news@acme.example",
		Content:     testContent,
		TagIDs:      []string{tag.ID},
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return c
}

func (e *testEnv) status(t *testing.T, id string) domain.CampaignStatus {
	t.Helper()
	c, err := e.store.GetCampaign(context.Background(), id)
	if err != nil || c == nil {
		t.Fatalf("GetCampaign(%s) = %v, %v", id, c, err)
	}
	return c.Status
}

func (e *testEnv) logMessages(t *testing.T, id string) []string {
	t.Helper()
	logs, err := e.store.RecentLogs(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("RecentLogs() error: %v", err)
	}
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Message
	}
	return out
}
