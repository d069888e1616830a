package domain

import (
	"strings"
	"time"
)

const (
	SuppressionUnsubscribed = "User unsubscribed"
	SuppressionHardBounce   = "hard_bounce"
	SuppressionComplaint    = "spam_complaint"
	SuppressionManual       = "manual"
)

// SuppressionEntry blocks an address from every campaign. The first reason
// recorded for an address is kept.
type SuppressionEntry struct {
	Email     string    `json:"email"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeEmail is the key used for suppression and audience dedup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
