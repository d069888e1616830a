// Package memory is an in-process Store used for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/google/uuid"
)

type Store struct {
	mu           sync.Mutex
	owners       map[string]domain.Owner
	tags         map[string]domain.Tag
	contacts     map[string]domain.Contact
	templates    map[string]domain.Template
	campaigns    map[string]domain.Campaign
	recipients   map[string]domain.Recipient
	suppressions map[string]domain.SuppressionEntry
	events       []domain.EmailEvent
	logs         []domain.CampaignLog

	// FailLogs makes AppendLog fail, for exercising log-failure paths.
	FailLogs bool
}

func New() *Store {
	return &Store{
		owners:       make(map[string]domain.Owner),
		tags:         make(map[string]domain.Tag),
		contacts:     make(map[string]domain.Contact),
		templates:    make(map[string]domain.Template),
		campaigns:    make(map[string]domain.Campaign),
		recipients:   make(map[string]domain.Recipient),
		suppressions: make(map[string]domain.SuppressionEntry),
	}
}

func newID() string {
	return uuid.New().String()
}

// Seeding. Contact, tag, template and owner management lives outside the
// send pipeline, so only inserts are provided.

func (s *Store) AddOwner(o domain.Owner) domain.Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = newID()
	}
	s.owners[o.ID] = o
	return o
}

func (s *Store) AddTag(t domain.Tag) domain.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = newID()
	}
	s.tags[t.ID] = t
	return t
}

func (s *Store) AddContact(c domain.Contact) domain.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	if c.Status == "" {
		c.Status = domain.ContactSubscribed
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.contacts[c.ID] = c
	return c
}

func (s *Store) AddTemplate(t domain.Template) domain.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = newID()
	}
	s.templates[t.ID] = t
	return t
}

// Campaigns

func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, nil
	}
	return cloneCampaign(c), nil
}

func (s *Store) ListCampaigns(ctx context.Context, ownerID string, status domain.CampaignStatus) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.OwnerID != ownerID || (status != "" && c.Status != status) {
			continue
		}
		out = append(out, *cloneCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	s.campaigns[c.ID] = *cloneCampaign(*c)
	return nil
}

func (s *Store) UpdateCampaign(ctx context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; !ok {
		return fmt.Errorf("updating campaign %s: not found", c.ID)
	}
	c.UpdatedAt = time.Now().UTC()
	s.campaigns[c.ID] = *cloneCampaign(*c)
	return nil
}

func (s *Store) DeleteCampaign(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.campaigns, id)
	for rid, r := range s.recipients {
		if r.CampaignID == id {
			delete(s.recipients, rid)
		}
	}
	return nil
}

func (s *Store) CampaignStats(ctx context.Context, ownerID string) (*domain.CampaignStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.CampaignStats
	for _, c := range s.campaigns {
		if c.OwnerID != ownerID {
			continue
		}
		st.Total++
		switch c.Status {
		case domain.CampaignDraft:
			st.Draft++
		case domain.CampaignScheduled:
			st.Scheduled++
		case domain.CampaignSent:
			st.Sent++
		}
	}
	return &st, nil
}

func (s *Store) TransitionCampaign(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus, sentAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || !slices.Contains(from, c.Status) {
		return false, nil
	}
	c.Status = to
	if sentAt != nil {
		t := *sentAt
		c.SentAt = &t
	}
	c.UpdatedAt = time.Now().UTC()
	s.campaigns[id] = c
	return true, nil
}

func cloneCampaign(c domain.Campaign) *domain.Campaign {
	c.TagIDs = slices.Clone(c.TagIDs)
	c.Content = slices.Clone(c.Content)
	return &c
}

// Recipients

func (s *Store) AddRecipients(ctx context.Context, campaignID string, contacts []domain.ResolvedContact) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[string]bool)
	for _, r := range s.recipients {
		if r.CampaignID == campaignID {
			existing[domain.NormalizeEmail(r.Email)] = true
		}
	}

	added := 0
	now := time.Now().UTC()
	for _, c := range contacts {
		key := domain.NormalizeEmail(c.Email)
		if existing[key] {
			continue
		}
		existing[key] = true
		id := newID()
		s.recipients[id] = domain.Recipient{
			ID:         id,
			CampaignID: campaignID,
			ContactID:  c.ContactID,
			Email:      c.Email,
			CreatedAt:  now,
		}
		added++
	}
	return added, nil
}

func (s *Store) DeleteRecipients(ctx context.Context, campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.recipients {
		if r.CampaignID == campaignID {
			delete(s.recipients, id)
		}
	}
	return nil
}

func (s *Store) UnsentRecipients(ctx context.Context, campaignID string) ([]domain.RecipientContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RecipientContact
	for _, r := range s.recipients {
		if r.CampaignID != campaignID || r.SentAt != nil || r.SkippedAt != nil {
			continue
		}
		rc := domain.RecipientContact{Recipient: r}
		if c, ok := s.contacts[r.ContactID]; ok {
			rc.FirstName, rc.LastName = c.FirstName, c.LastName
		}
		out = append(out, rc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) MarkSent(ctx context.Context, recipientID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recipients[recipientID]
	if !ok || r.SentAt != nil {
		return false, nil
	}
	r.SentAt = &at
	s.recipients[recipientID] = r
	return true, nil
}

func (s *Store) SkipRecipients(ctx context.Context, recipientIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range recipientIDs {
		r, ok := s.recipients[id]
		if !ok || r.SentAt != nil || r.SkippedAt != nil {
			continue
		}
		r.SkippedAt = &at
		s.recipients[id] = r
	}
	return nil
}

func (s *Store) CountRecipients(ctx context.Context, campaignID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, sent := 0, 0
	for _, r := range s.recipients {
		if r.CampaignID != campaignID || r.SkippedAt != nil {
			continue
		}
		total++
		if r.SentAt != nil {
			sent++
		}
	}
	return total, sent, nil
}

// Contacts

func (s *Store) OwnedTagIDs(ctx context.Context, ownerID string, tagIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range tagIDs {
		if t, ok := s.tags[id]; ok && t.OwnerID == ownerID {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Store) SubscribedContactsByTags(ctx context.Context, ownerID string, tagIDs []string) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Contact
	for _, c := range s.contacts {
		if c.OwnerID != ownerID || c.Status != domain.ContactSubscribed {
			continue
		}
		for _, t := range c.TagIDs {
			if slices.Contains(tagIDs, t) {
				out = append(out, c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SampleContact(ctx context.Context, ownerID string) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sample *domain.Contact
	for _, c := range s.contacts {
		if c.OwnerID != ownerID || c.Status != domain.ContactSubscribed {
			continue
		}
		if sample == nil || c.CreatedAt.Before(sample.CreatedAt) {
			cc := c
			sample = &cc
		}
	}
	return sample, nil
}

func (s *Store) SetContactStatus(ctx context.Context, email string, status domain.ContactStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeEmail(email)
	n := 0
	for id, c := range s.contacts {
		if domain.NormalizeEmail(c.Email) == key {
			c.Status = status
			s.contacts[id] = c
			n++
		}
	}
	return n, nil
}

// Suppressions

func (s *Store) SuppressedEmails(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.suppressions))
	for email := range s.suppressions {
		out = append(out, email)
	}
	return out, nil
}

func (s *Store) ListSuppressions(ctx context.Context, limit int) ([]domain.SuppressionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SuppressionEntry, 0, len(s.suppressions))
	for _, e := range s.suppressions {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Suppress(ctx context.Context, email, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeEmail(email)
	if _, ok := s.suppressions[key]; ok {
		return false, nil
	}
	s.suppressions[key] = domain.SuppressionEntry{Email: key, Reason: reason, CreatedAt: time.Now().UTC()}
	return true, nil
}

// Events

func (s *Store) RecordEvent(ctx context.Context, e *domain.EmailEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, *e)
	return nil
}

func (s *Store) CountEvents(ctx context.Context, campaignID string) (map[domain.EventType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.EventType]int)
	for _, e := range s.events {
		if e.CampaignID == campaignID {
			counts[e.Type]++
		}
	}
	return counts, nil
}

func (s *Store) CountEventsForRecipient(ctx context.Context, campaignID, email string, t domain.EventType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.CampaignID == campaignID && e.RecipientEmail == email && e.Type == t {
			n++
		}
	}
	return n, nil
}

// Events returns a copy of every recorded event.
func (s *Store) Events() []domain.EmailEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Logs

func (s *Store) AppendLog(ctx context.Context, l *domain.CampaignLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLogs {
		return fmt.Errorf("inserting campaign log: storage unavailable")
	}
	if l.ID == "" {
		l.ID = newID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	s.logs = append(s.logs, *l)
	return nil
}

func (s *Store) RecentLogs(ctx context.Context, campaignID string, limit int) ([]domain.CampaignLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CampaignLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].CampaignID != campaignID {
			continue
		}
		out = append(out, s.logs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Templates and owners

func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) GetOwner(ctx context.Context, id string) (*domain.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) DashboardMetrics(ctx context.Context, ownerID string) (*domain.DashboardMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := domain.DashboardMetrics{
		Campaigns:    make(map[domain.CampaignStatus]int),
		Events:       make(map[domain.EventType]int),
		Suppressions: len(s.suppressions),
	}
	owned := make(map[string]bool)
	for _, c := range s.campaigns {
		if c.OwnerID == ownerID {
			owned[c.ID] = true
			m.Campaigns[c.Status]++
		}
	}
	for _, r := range s.recipients {
		if owned[r.CampaignID] {
			m.TotalRecipients++
			if r.SentAt != nil {
				m.SentRecipients++
			}
		}
	}
	for _, e := range s.events {
		if owned[e.CampaignID] {
			m.Events[e.Type]++
		}
	}
	return &m, nil
}
