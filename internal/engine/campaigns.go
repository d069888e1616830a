package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/content"
	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/Priya8975/campaign-mailer/internal/transport"
)

// CampaignService is the owner-facing API of campaigns: editing drafts,
// previews, test sends, reporting and the unsubscribe flow. Sending goes
// through the Dispatcher.
type CampaignService struct {
	store       Store
	resolver    *Resolver
	suppression *SuppressionFilter
	dispatcher  *Dispatcher
	renderer    content.Renderer
	transport   transport.Transport
	audit       *Audit
	publicURL   string
	logger      *slog.Logger
}

func NewCampaignService(
	store Store,
	resolver *Resolver,
	suppression *SuppressionFilter,
	dispatcher *Dispatcher,
	renderer content.Renderer,
	tr transport.Transport,
	audit *Audit,
	publicURL string,
	logger *slog.Logger,
) *CampaignService {
	return &CampaignService{
		store:       store,
		resolver:    resolver,
		suppression: suppression,
		dispatcher:  dispatcher,
		renderer:    renderer,
		transport:   tr,
		audit:       audit,
		publicURL:   strings.TrimRight(publicURL, "/"),
		logger:      logger,
	}
}

type Preview struct {
	Subject    string            `json:"subject"`
	HTML       string            `json:"html"`
	SampleData content.MergeData `json:"sample_data"`
}

// Get returns the campaign if it exists and belongs to ownerID.
func (s *CampaignService) Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading campaign: %w", err)
	}
	if c == nil || c.OwnerID != ownerID {
		return nil, domain.NewNotFound("campaign", id)
	}
	return c, nil
}

func (s *CampaignService) List(ctx context.Context, ownerID string, status domain.CampaignStatus) ([]domain.Campaign, error) {
	return s.store.ListCampaigns(ctx, ownerID, status)
}

func (s *CampaignService) Stats(ctx context.Context, ownerID string) (*domain.CampaignStats, error) {
	return s.store.CampaignStats(ctx, ownerID)
}

// Create stores a DRAFT campaign and its recipients. The audience must not
// be empty.
func (s *CampaignService) Create(ctx context.Context, ownerID string, req domain.CreateCampaignRequest) (*domain.Campaign, error) {
	if err := validateCampaignFields(req.Name, req.Subject, req.SenderEmail); err != nil {
		return nil, err
	}
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}

	audience, err := s.resolver.Resolve(ctx, ownerID, req.TagIDs)
	if err != nil {
		return nil, err
	}
	if len(audience) == 0 {
		return nil, domain.NewValidationError("tag_ids", "no subscribed contacts found for selected tags")
	}

	templateID, err := s.checkTemplate(ctx, ownerID, req.TemplateID)
	if err != nil {
		return nil, err
	}

	status := domain.CampaignDraft
	if req.ScheduledAt != nil {
		status = domain.CampaignScheduled
	}
	c := &domain.Campaign{
		OwnerID:     ownerID,
		Name:        req.Name,
		Subject:     req.Subject,
		SenderName:  req.SenderName,
		SenderEmail: req.SenderEmail,
		Content:     req.Content,
		TemplateID:  templateID,
		TagIDs:      uniqueStrings(req.TagIDs),
		Status:      status,
		ScheduledAt: req.ScheduledAt,
	}
	if err := s.store.CreateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("creating campaign: %w", err)
	}

	added, err := s.store.AddRecipients(ctx, c.ID, audience)
	if err != nil {
		return nil, fmt.Errorf("adding recipients: %w", err)
	}

	s.audit.Info(ctx, c.ID, fmt.Sprintf("Campaign created with %d recipients", added), map[string]any{"tag_ids": c.TagIDs})
	s.logger.Info("campaign created", "campaign_id", c.ID, "owner_id", ownerID, "recipients", added)
	return c, nil
}

// Update edits a DRAFT campaign. Changing the tags rebuilds the recipient
// list.
func (s *CampaignService) Update(ctx context.Context, ownerID, id string, req domain.UpdateCampaignRequest) (*domain.Campaign, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft {
		return nil, domain.NewInvalidState(id, c.Status, "edit")
	}

	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Subject != nil {
		c.Subject = *req.Subject
	}
	if req.SenderName != nil {
		c.SenderName = *req.SenderName
	}
	if req.SenderEmail != nil {
		c.SenderEmail = *req.SenderEmail
	}
	if len(req.Content) > 0 {
		if err := validateContent(req.Content); err != nil {
			return nil, err
		}
		c.Content = req.Content
	}
	if req.ScheduledAt != nil {
		c.ScheduledAt = req.ScheduledAt
	}
	if req.TemplateID != nil {
		c.TemplateID, err = s.checkTemplate(ctx, ownerID, *req.TemplateID)
		if err != nil {
			return nil, err
		}
	}
	if err := validateCampaignFields(c.Name, c.Subject, c.SenderEmail); err != nil {
		return nil, err
	}

	var audience []domain.ResolvedContact
	if req.TagIDs != nil {
		audience, err = s.resolver.Resolve(ctx, ownerID, req.TagIDs)
		if err != nil {
			return nil, err
		}
		if len(audience) == 0 {
			return nil, domain.NewValidationError("tag_ids", "no subscribed contacts found for selected tags")
		}
		c.TagIDs = uniqueStrings(req.TagIDs)
	}

	if err := s.store.UpdateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("updating campaign: %w", err)
	}

	if req.TagIDs != nil {
		if err := s.store.DeleteRecipients(ctx, id); err != nil {
			return nil, fmt.Errorf("clearing recipients: %w", err)
		}
		added, err := s.store.AddRecipients(ctx, id, audience)
		if err != nil {
			return nil, fmt.Errorf("adding recipients: %w", err)
		}
		s.audit.Info(ctx, id, fmt.Sprintf("Recipients rebuilt: %d", added), map[string]any{"tag_ids": c.TagIDs})
	}
	return c, nil
}

// Delete removes a campaign that has not started sending.
func (s *CampaignService) Delete(ctx context.Context, ownerID, id string) error {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignDraft {
		return domain.NewInvalidState(id, c.Status, "delete")
	}
	if err := s.store.DeleteCampaign(ctx, id); err != nil {
		return fmt.Errorf("deleting campaign: %w", err)
	}
	s.logger.Info("campaign deleted", "campaign_id", id, "owner_id", ownerID)
	return nil
}

func (s *CampaignService) SendNow(ctx context.Context, ownerID, id string) (*SendAck, error) {
	return s.dispatcher.SendNow(ctx, ownerID, id)
}

// Preview renders the campaign personalized with a sample subscribed
// contact, or placeholder data when the owner has none.
func (s *CampaignService) Preview(ctx context.Context, ownerID, id string) (*Preview, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	html, err := s.dispatcher.render(ctx, c)
	if err != nil {
		return nil, err
	}

	sample := content.MergeData{FirstName: "John", LastName: "Doe", Email: "john.doe@example.com"}
	contact, err := s.store.SampleContact(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("loading sample contact: %w", err)
	}
	if contact != nil {
		sample.Email = contact.Email
		if contact.FirstName != "" {
			sample.FirstName = contact.FirstName
		}
		if contact.LastName != "" {
			sample.LastName = contact.LastName
		}
	}

	return &Preview{
		Subject:    content.Personalize(c.Subject, sample),
		HTML:       content.PersonalizeHTML(html, sample),
		SampleData: sample,
	}, nil
}

// SendTest mails one copy of the campaign to address, bypassing the queue.
func (s *CampaignService) SendTest(ctx context.Context, ownerID, id, address string) error {
	address = strings.TrimSpace(address)
	if _, err := mailAddress(address); err != nil {
		return domain.NewValidationError("email", "a valid email address is required")
	}

	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	html, err := s.dispatcher.render(ctx, c)
	if err != nil {
		return err
	}

	sample := content.MergeData{FirstName: "John", LastName: "Doe", Email: address}
	q := url.Values{}
	q.Set("email", address)
	q.Set("test", "true")

	body, err := content.Finalize(content.PersonalizeHTML(html, sample), content.FinalizeOptions{
		UnsubscribeURL: s.publicURL + "/unsubscribe?" + q.Encode(),
	})
	if err != nil {
		return fmt.Errorf("finalizing test email: %w", err)
	}
	body = `<div style="padding: 20px; background-color: #fef3c7; border: 2px solid #f59e0b; margin-bottom: 20px;"><strong>THIS IS A TEST EMAIL</strong></div>` + body

	messageID, err := s.transport.Send(ctx, transport.Message{
		To:        address,
		FromName:  c.SenderName,
		FromEmail: c.SenderEmail,
		Subject:   "[TEST] " + content.Personalize(c.Subject, sample),
		HTML:      body,
	})
	if err != nil {
		return fmt.Errorf("sending test email: %w", err)
	}

	s.audit.Info(ctx, id, "Test email sent", map[string]any{"to": address, "message_id": messageID})
	return nil
}

func (s *CampaignService) Analytics(ctx context.Context, ownerID, id string) (*domain.CampaignAnalytics, error) {
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	total, sent, err := s.store.CountRecipients(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("counting recipients: %w", err)
	}
	counts, err := s.store.CountEvents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	return &domain.CampaignAnalytics{
		Campaign: domain.CampaignSummary{ID: c.ID, Name: c.Name, Status: c.Status, SentAt: c.SentAt},
		Metrics:  domain.NewCampaignMetrics(total, sent, counts),
	}, nil
}

// Logs returns the newest audit entries of an owned campaign.
func (s *CampaignService) Logs(ctx context.Context, ownerID, id string) ([]domain.CampaignLog, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.audit.Recent(ctx, id)
}

func (s *CampaignService) MergeTags() []content.MergeTag {
	return content.MergeTags()
}

// Unsubscribe opts an address out of every future campaign: matching
// contacts become UNSUBSCRIBED, the address is suppressed and, when the
// request came from a campaign email, an UNSUBSCRIBED event is recorded.
func (s *CampaignService) Unsubscribe(ctx context.Context, email, campaignID string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.NewValidationError("email", "email is required")
	}

	if _, err := s.store.SetContactStatus(ctx, email, domain.ContactUnsubscribed); err != nil {
		return fmt.Errorf("updating contacts: %w", err)
	}
	if _, err := s.suppression.Suppress(ctx, email, domain.SuppressionUnsubscribed); err != nil {
		return err
	}

	if campaignID != "" {
		c, err := s.store.GetCampaign(ctx, campaignID)
		if err != nil {
			return fmt.Errorf("loading campaign: %w", err)
		}
		if c != nil {
			if err := s.store.RecordEvent(ctx, &domain.EmailEvent{
				CampaignID:     campaignID,
				RecipientEmail: email,
				Type:           domain.EventUnsubscribed,
				CreatedAt:      time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("recording unsubscribe: %w", err)
			}
			s.audit.Info(ctx, campaignID, "Recipient unsubscribed", map[string]any{"email": email})
		}
	}
	return nil
}

func (s *CampaignService) checkTemplate(ctx context.Context, ownerID, templateID string) (*string, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return nil, nil
	}
	t, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("loading template: %w", err)
	}
	if t == nil || t.OwnerID != ownerID {
		return nil, domain.NewValidationError("template_id", "invalid template id")
	}
	return &templateID, nil
}

func validateCampaignFields(name, subject, senderEmail string) error {
	if strings.TrimSpace(name) == "" {
		return domain.NewValidationError("name", "name is required")
	}
	if strings.TrimSpace(subject) == "" {
		return domain.NewValidationError("subject", "subject is required")
	}
	if _, err := mailAddress(senderEmail); err != nil {
		return domain.NewValidationError("sender_email", "a valid sender email is required")
	}
	return nil
}

func validateContent(raw json.RawMessage) error {
	if _, err := content.Parse(raw); err != nil {
		return domain.NewValidationError("content", err.Error())
	}
	return nil
}
