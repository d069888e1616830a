package domain

import "time"

// Recipient joins a campaign with one contact and carries its delivery marker.
// SentAt is written once, by the worker whose send succeeded first.
// SkippedAt marks a recipient that was suppressed at dispatch time; skipped
// recipients no longer count toward the campaign total.
type Recipient struct {
	ID         string     `json:"id"`
	CampaignID string     `json:"campaign_id"`
	ContactID  string     `json:"contact_id"`
	Email      string     `json:"email"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	SkippedAt  *time.Time `json:"skipped_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RecipientContact is an unsent recipient together with the contact fields
// needed for personalization.
type RecipientContact struct {
	Recipient
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ResolvedContact is one member of a resolved audience.
type ResolvedContact struct {
	ContactID string `json:"contact_id"`
	Email     string `json:"email"`
}
