package domain

import (
	"time"
)

// DeadLetter records a delivery job that was abandoned, either because its
// retry budget ran out or because the transport rejected it permanently.
// The recipient stays unsent.
type DeadLetter struct {
	CampaignID  string    `json:"campaign_id"`
	RecipientID string    `json:"recipient_id"`
	Email       string    `json:"email"`
	Attempts    int       `json:"attempts"`
	Permanent   bool      `json:"permanent"`
	LastError   string    `json:"last_error"`
	AbandonedAt time.Time `json:"abandoned_at"`
}
