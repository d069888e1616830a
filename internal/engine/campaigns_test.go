package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

func TestCampaignService_CreateBuildsRecipients(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, "a@example.com", "A@example.com", "b@example.com")

	if c.Status != domain.CampaignDraft {
		t.Errorf("status = %s, want DRAFT", c.Status)
	}
	total, sent, _ := env.store.CountRecipients(context.Background(), c.ID)
	if total != 2 || sent != 0 {
		t.Errorf("recipients = %d/%d, want 2 unsent", total, sent)
	}
}

func TestCampaignService_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tag := env.store.AddTag(domain.Tag{OwnerID: env.owner.ID, Name: "empty"})
	foreignTpl := env.store.AddTemplate(domain.Template{OwnerID: "someone-else", HTML: "{{CONTENT}}"})
	full := env.store.AddTag(domain.Tag{OwnerID: env.owner.ID, Name: "full"})
	env.store.AddContact(domain.Contact{OwnerID: env.owner.ID, Email: "x@example.com", TagIDs: []string{full.ID}})

	valid := domain.CreateCampaignRequest{
		Name: "n", Subject: "s", SenderEmail: "news@acme.example", Content: testContent, TagIDs: []string{full.ID},
	}

	tests := []struct {
		name   string
		mutate func(*domain.CreateCampaignRequest)
	}{
		{"empty audience", func(r *domain.CreateCampaignRequest) { r.TagIDs = []string{tag.ID} }},
		{"missing name", func(r *domain.CreateCampaignRequest) { r.Name = "" }},
		{"bad sender", func(r *domain.CreateCampaignRequest) { r.SenderEmail = "nope" }},
		{"foreign template", func(r *domain.CreateCampaignRequest) { r.TemplateID = foreignTpl.ID }},
		{"bad content", func(r *domain.CreateCampaignRequest) {
			r.Content = []byte(`{"body":{"blocks":[{"type":"video","data":{}}]}}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := env.service.Create(ctx, env.owner.ID, req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("Create() error = %v, want ValidationError", err)
			}
		})
	}

	scheduled := valid
	at := time.Now().Add(time.Hour)
	scheduled.ScheduledAt = &at
	c, err := env.service.Create(ctx, env.owner.ID, scheduled)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if c.Status != domain.CampaignScheduled {
		t.Errorf("status = %s, want SCHEDULED", c.Status)
	}
}

func TestCampaignService_UpdateReplacesRecipients(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.seedCampaign(t, "a@example.com", "b@example.com")

	vip := env.store.AddTag(domain.Tag{OwnerID: env.owner.ID, Name: "vip"})
	env.store.AddContact(domain.Contact{OwnerID: env.owner.ID, Email: "vip@example.com", TagIDs: []string{vip.ID}})

	subject := "New subject"
	updated, err := env.service.Update(ctx, env.owner.ID, c.ID, domain.UpdateCampaignRequest{
		Subject: &subject,
		TagIDs:  []string{vip.ID},
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Subject != subject {
		t.Errorf("subject = %q", updated.Subject)
	}

	rs, _ := env.store.UnsentRecipients(ctx, c.ID)
	if len(rs) != 1 || rs[0].Email != "vip@example.com" {
		t.Errorf("recipients = %+v, want only vip@example.com", rs)
	}
}

func TestCampaignService_UpdateRejectsEmptyAudience(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.seedCampaign(t, "a@example.com", "b@example.com")
	empty := env.store.AddTag(domain.Tag{OwnerID: env.owner.ID, Name: "empty"})

	_, err := env.service.Update(ctx, env.owner.ID, c.ID, domain.UpdateCampaignRequest{TagIDs: []string{empty.ID}})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Update() error = %v, want ValidationError", err)
	}

	total, _, _ := env.store.CountRecipients(ctx, c.ID)
	if total != 2 {
		t.Errorf("recipients = %d, want the original 2 kept", total)
	}
}

func TestCampaignService_EditAndDeleteOnlyDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.seedCampaign(t, "a@example.com")
	env.store.TransitionCampaign(ctx, c.ID, []domain.CampaignStatus{domain.CampaignDraft}, domain.CampaignSending, nil)

	var ise *domain.InvalidStateError
	name := "x"
	if _, err := env.service.Update(ctx, env.owner.ID, c.ID, domain.UpdateCampaignRequest{Name: &name}); !errors.As(err, &ise) {
		t.Errorf("Update() error = %v, want InvalidStateError", err)
	}
	if err := env.service.Delete(ctx, env.owner.ID, c.ID); !errors.As(err, &ise) {
		t.Errorf("Delete() error = %v, want InvalidStateError", err)
	}

	draft := env.seedCampaign(t, "b@example.com")
	if err := env.service.Delete(ctx, env.owner.ID, draft.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	var nf *domain.NotFoundError
	if _, err := env.service.Get(ctx, env.owner.ID, draft.ID); !errors.As(err, &nf) {
		t.Errorf("Get() after delete error = %v, want NotFoundError", err)
	}
}

func TestCampaignService_Preview(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, "a@example.com")

	p, err := env.service.Preview(context.Background(), env.owner.ID, c.ID)
	if err != nil {
		t.Fatalf("Preview() error: %v", err)
	}
	if p.Subject != "Hello User" {
		t.Errorf("subject = %q, want personalized", p.Subject)
	}
	if !strings.Contains(p.HTML, "Hi User") {
		t.Errorf("html should be personalized: %s", p.HTML)
	}
	if p.SampleData.Email != "a@example.com" {
		t.Errorf("sample email = %q", p.SampleData.Email)
	}
}

func TestCampaignService_SendTest(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, "a@example.com")

	if err := env.service.SendTest(context.Background(), env.owner.ID, c.ID, "qa@acme.example"); err != nil {
		t.Fatalf("SendTest() error: %v", err)
	}
	if len(env.transport.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(env.transport.sent))
	}
	msg := env.transport.sent[0]
	if msg.Subject != "[TEST] Hello John" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if strings.Contains(msg.HTML, "UNSUBSCRIBE_LINK") {
		t.Error("placeholder must be resolved")
	}
	if strings.Count(msg.HTML, "/unsubscribe?") != 1 {
		t.Errorf("want exactly one unsubscribe link: %s", msg.HTML)
	}

	if err := env.service.SendTest(context.Background(), env.owner.ID, c.ID, "not-an-email"); err == nil {
		t.Error("expected validation error for bad address")
	}
}

func TestCampaignService_Analytics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.seedCampaign(t, "a@example.com", "b@example.com")
	rs, _ := env.store.UnsentRecipients(ctx, c.ID)
	env.store.MarkSent(ctx, rs[0].ID, time.Now())

	for _, typ := range []domain.EventType{domain.EventSent, domain.EventDelivered, domain.EventDelivered, domain.EventOpened, domain.EventBounced} {
		env.store.RecordEvent(ctx, &domain.EmailEvent{CampaignID: c.ID, RecipientEmail: "a@example.com", Type: typ})
	}

	a, err := env.service.Analytics(ctx, env.owner.ID, c.ID)
	if err != nil {
		t.Fatalf("Analytics() error: %v", err)
	}
	m := a.Metrics
	if m.TotalRecipients != 2 || m.Sent != 1 || m.Delivered != 2 {
		t.Errorf("metrics = %+v", m)
	}
	if m.OpenRate != "50.00" || m.ClickRate != "0.00" || m.BounceRate != "100.00" {
		t.Errorf("rates = %s/%s/%s", m.OpenRate, m.ClickRate, m.BounceRate)
	}
}

func TestCampaignService_Unsubscribe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.seedCampaign(t, "a@example.com")

	if err := env.service.Unsubscribe(ctx, "A@Example.com", c.ID); err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}

	set, _ := NewSuppressionFilter(env.store, testLogger()).Load(ctx)
	if !set.IsSuppressed("a@example.com") {
		t.Error("address should be suppressed")
	}
	if n, _ := env.store.CountEventsForRecipient(ctx, c.ID, "a@example.com", domain.EventUnsubscribed); n != 1 {
		t.Errorf("unsubscribe events = %d, want 1", n)
	}
	if contact, _ := env.store.SampleContact(ctx, env.owner.ID); contact != nil {
		t.Error("contact should no longer be subscribed")
	}

	if err := env.service.Unsubscribe(ctx, "", ""); err == nil {
		t.Error("expected validation error for empty email")
	}
}

func TestCampaignService_LogsRequireOwnership(t *testing.T) {
	env := newTestEnv(t)
	c := env.seedCampaign(t, "a@example.com")

	logs, err := env.service.Logs(context.Background(), env.owner.ID, c.ID)
	if err != nil || len(logs) == 0 {
		t.Fatalf("Logs() = %v, %v", logs, err)
	}
	var nf *domain.NotFoundError
	if _, err := env.service.Logs(context.Background(), "intruder", c.ID); !errors.As(err, &nf) {
		t.Errorf("Logs() error = %v, want NotFoundError", err)
	}
}
