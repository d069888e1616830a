package engine

import (
	"context"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

// Persistence contracts used by the send pipeline. Lookups return nil, nil
// when the row does not exist.

type CampaignStore interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context, ownerID string, status domain.CampaignStatus) ([]domain.Campaign, error)
	CreateCampaign(ctx context.Context, c *domain.Campaign) error
	UpdateCampaign(ctx context.Context, c *domain.Campaign) error
	DeleteCampaign(ctx context.Context, id string) error
	CampaignStats(ctx context.Context, ownerID string) (*domain.CampaignStats, error)

	// TransitionCampaign moves the campaign to status `to` only if its
	// current status is one of `from`. It reports whether the row changed.
	TransitionCampaign(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus, sentAt *time.Time) (bool, error)
}

type RecipientStore interface {
	// AddRecipients inserts recipients, skipping emails already present for
	// the campaign. It returns the number inserted.
	AddRecipients(ctx context.Context, campaignID string, contacts []domain.ResolvedContact) (int, error)
	DeleteRecipients(ctx context.Context, campaignID string) error
	UnsentRecipients(ctx context.Context, campaignID string) ([]domain.RecipientContact, error)
	GetRecipient(ctx context.Context, id string) (*domain.Recipient, error)

	// MarkSent sets sent_at if and only if it is still unset. Exactly one
	// caller per recipient observes true.
	MarkSent(ctx context.Context, recipientID string, at time.Time) (bool, error)
	// SkipRecipients takes suppressed recipients out of the campaign total.
	SkipRecipients(ctx context.Context, recipientIDs []string, at time.Time) error
	// CountRecipients ignores skipped recipients.
	CountRecipients(ctx context.Context, campaignID string) (total, sent int, err error)
}

type ContactStore interface {
	OwnedTagIDs(ctx context.Context, ownerID string, tagIDs []string) ([]string, error)
	SubscribedContactsByTags(ctx context.Context, ownerID string, tagIDs []string) ([]domain.Contact, error)
	SampleContact(ctx context.Context, ownerID string) (*domain.Contact, error)
	SetContactStatus(ctx context.Context, email string, status domain.ContactStatus) (int, error)
}

type SuppressionStore interface {
	SuppressedEmails(ctx context.Context) ([]string, error)
	ListSuppressions(ctx context.Context, limit int) ([]domain.SuppressionEntry, error)

	// Suppress creates the entry if absent; an existing entry keeps its
	// original reason.
	Suppress(ctx context.Context, email, reason string) (bool, error)
}

type EventStore interface {
	RecordEvent(ctx context.Context, e *domain.EmailEvent) error
	CountEvents(ctx context.Context, campaignID string) (map[domain.EventType]int, error)
	CountEventsForRecipient(ctx context.Context, campaignID, email string, t domain.EventType) (int, error)
}

type LogStore interface {
	AppendLog(ctx context.Context, l *domain.CampaignLog) error
	RecentLogs(ctx context.Context, campaignID string, limit int) ([]domain.CampaignLog, error)
}

type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
}

type OwnerStore interface {
	GetOwner(ctx context.Context, id string) (*domain.Owner, error)
}

// Store is implemented by both the Postgres and the in-memory backends.
type Store interface {
	CampaignStore
	RecipientStore
	ContactStore
	SuppressionStore
	EventStore
	LogStore
	TemplateStore
	OwnerStore
}
