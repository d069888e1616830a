package domain

import (
	"time"
)

type EventType string

const (
	EventSent         EventType = "SENT"
	EventDelivered    EventType = "DELIVERED"
	EventOpened       EventType = "OPENED"
	EventClicked      EventType = "CLICKED"
	EventBounced      EventType = "BOUNCED"
	EventComplained   EventType = "COMPLAINED"
	EventUnsubscribed EventType = "UNSUBSCRIBED"
)

// EmailEvent is an append-only delivery fact. Analytics are derived by
// counting these rows.
type EmailEvent struct {
	ID             string         `json:"id"`
	CampaignID     string         `json:"campaign_id"`
	RecipientEmail string         `json:"recipient_email"`
	Type           EventType      `json:"event_type"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
