package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/engine"
)

var _ engine.Store = (*Store)(nil)

func TestMarkSent_SingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &domain.Campaign{OwnerID: "o1", Name: "c"}
	s.CreateCampaign(ctx, c)
	s.AddRecipients(ctx, c.ID, []domain.ResolvedContact{{ContactID: "k1", Email: "a@example.com"}})
	unsent, _ := s.UnsentRecipients(ctx, c.ID)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.MarkSent(ctx, unsent[0].ID, time.Now()); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("MarkSent winners = %d, want 1", wins.Load())
	}
	total, sent, _ := s.CountRecipients(ctx, c.ID)
	if total != 1 || sent != 1 {
		t.Errorf("CountRecipients() = %d, %d, want 1, 1", total, sent)
	}
}

func TestAddRecipients_SkipsDuplicateEmails(t *testing.T) {
	s := New()
	ctx := context.Background()

	n, _ := s.AddRecipients(ctx, "c1", []domain.ResolvedContact{
		{ContactID: "k1", Email: "a@example.com"},
		{ContactID: "k2", Email: "A@Example.com"},
	})
	if n != 1 {
		t.Errorf("AddRecipients() = %d, want 1", n)
	}
	n, _ = s.AddRecipients(ctx, "c1", []domain.ResolvedContact{{ContactID: "k1", Email: "a@example.com"}})
	if n != 0 {
		t.Errorf("second AddRecipients() = %d, want 0", n)
	}
}

func TestSuppress_KeepsOriginalReason(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, _ := s.Suppress(ctx, "A@example.com", domain.SuppressionUnsubscribed)
	if !created {
		t.Error("first Suppress() should create")
	}
	created, _ = s.Suppress(ctx, "a@example.com ", domain.SuppressionHardBounce)
	if created {
		t.Error("second Suppress() should not create")
	}

	entries, _ := s.ListSuppressions(ctx, 10)
	if len(entries) != 1 || entries[0].Reason != domain.SuppressionUnsubscribed {
		t.Errorf("suppressions = %+v, want one with reason %q", entries, domain.SuppressionUnsubscribed)
	}
}

func TestTransitionCampaign_CompareAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &domain.Campaign{OwnerID: "o1"}
	s.CreateCampaign(ctx, c)

	from := []domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled}
	ok, _ := s.TransitionCampaign(ctx, c.ID, from, domain.CampaignSending, nil)
	if !ok {
		t.Fatal("first transition should succeed")
	}
	ok, _ = s.TransitionCampaign(ctx, c.ID, from, domain.CampaignSending, nil)
	if ok {
		t.Error("second transition from DRAFT should fail")
	}
}

func TestRecentLogs_NewestFirstWithLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.AppendLog(ctx, &domain.CampaignLog{CampaignID: "c1", Level: domain.LogInfo, Message: string(rune('a' + i))})
	}
	s.AppendLog(ctx, &domain.CampaignLog{CampaignID: "c2", Message: "other"})

	logs, _ := s.RecentLogs(ctx, "c1", 3)
	if len(logs) != 3 {
		t.Fatalf("len(logs) = %d, want 3", len(logs))
	}
	if logs[0].Message != "e" || logs[2].Message != "c" {
		t.Errorf("logs = %q %q %q, want e d c", logs[0].Message, logs[1].Message, logs[2].Message)
	}
}

func TestSkipRecipients_ExcludedFromCounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &domain.Campaign{OwnerID: "o1", Name: "c"}
	s.CreateCampaign(ctx, c)
	s.AddRecipients(ctx, c.ID, []domain.ResolvedContact{
		{ContactID: "k1", Email: "a@example.com"},
		{ContactID: "k2", Email: "b@example.com"},
	})
	unsent, _ := s.UnsentRecipients(ctx, c.ID)

	if err := s.SkipRecipients(ctx, []string{unsent[0].ID}, time.Now()); err != nil {
		t.Fatalf("SkipRecipients() error: %v", err)
	}

	total, sent, _ := s.CountRecipients(ctx, c.ID)
	if total != 1 || sent != 0 {
		t.Errorf("CountRecipients() = %d, %d, want 1, 0", total, sent)
	}
	left, _ := s.UnsentRecipients(ctx, c.ID)
	if len(left) != 1 || left[0].Email != "b@example.com" {
		t.Errorf("unsent = %+v", left)
	}
}
