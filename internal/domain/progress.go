package domain

import "time"

type ProgressType string

const (
	ProgressSent      ProgressType = "email_sent"
	ProgressFailed    ProgressType = "email_failed"
	ProgressRetrying  ProgressType = "email_retrying"
	ProgressAbandoned ProgressType = "email_abandoned"
	ProgressCompleted ProgressType = "campaign_completed"
)

// ProgressEvent is a live update about a sending campaign.
type ProgressEvent struct {
	Type        ProgressType   `json:"type"`
	CampaignID  string         `json:"campaign_id"`
	RecipientID string         `json:"recipient_id,omitempty"`
	Email       string         `json:"email,omitempty"`
	Attempt     int            `json:"attempt,omitempty"`
	Status      CampaignStatus `json:"status,omitempty"`
	Sent        int            `json:"sent,omitempty"`
	Total       int            `json:"total,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
