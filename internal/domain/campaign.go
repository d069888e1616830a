package domain

import (
	"encoding/json"
	"time"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignScheduled CampaignStatus = "SCHEDULED"
	CampaignSending   CampaignStatus = "SENDING"
	CampaignSent      CampaignStatus = "SENT"
	CampaignFailed    CampaignStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignSent || s == CampaignFailed
}

// Sendable reports whether a send pass may start from s.
func (s CampaignStatus) Sendable() bool {
	return s == CampaignDraft || s == CampaignScheduled
}

type Campaign struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Name        string          `json:"name"`
	Subject     string          `json:"subject"`
	SenderName  string          `json:"sender_name"`
	SenderEmail string          `json:"sender_email"`
	Content     json.RawMessage `json:"content"`
	TemplateID  *string         `json:"template_id,omitempty"`
	TagIDs      []string        `json:"tag_ids"`
	Status      CampaignStatus  `json:"status"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	SentAt      *time.Time      `json:"sent_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type CreateCampaignRequest struct {
	Name        string          `json:"name"`
	Subject     string          `json:"subject"`
	SenderName  string          `json:"sender_name"`
	SenderEmail string          `json:"sender_email"`
	Content     json.RawMessage `json:"content"`
	TemplateID  string          `json:"template_id,omitempty"`
	TagIDs      []string        `json:"tag_ids"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
}

// UpdateCampaignRequest carries a partial edit. A nil TemplateID leaves the
// template untouched, an empty one clears it.
type UpdateCampaignRequest struct {
	Name        *string         `json:"name,omitempty"`
	Subject     *string         `json:"subject,omitempty"`
	SenderName  *string         `json:"sender_name,omitempty"`
	SenderEmail *string         `json:"sender_email,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	TemplateID  *string         `json:"template_id,omitempty"`
	TagIDs      []string        `json:"tag_ids,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
}

// CampaignStats counts an owner's campaigns per status.
type CampaignStats struct {
	Total     int `json:"total"`
	Draft     int `json:"draft"`
	Scheduled int `json:"scheduled"`
	Sent      int `json:"sent"`
}
