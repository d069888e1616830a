package domain

import (
	"fmt"
	"time"
)

type CampaignSummary struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Status CampaignStatus `json:"status"`
	SentAt *time.Time     `json:"sent_at,omitempty"`
}

type CampaignMetrics struct {
	TotalRecipients int    `json:"total_recipients"`
	Sent            int    `json:"sent"`
	Delivered       int    `json:"delivered"`
	Opened          int    `json:"opened"`
	Clicked         int    `json:"clicked"`
	Bounced         int    `json:"bounced"`
	Unsubscribed    int    `json:"unsubscribed"`
	OpenRate        string `json:"open_rate"`
	ClickRate       string `json:"click_rate"`
	BounceRate      string `json:"bounce_rate"`
}

type CampaignAnalytics struct {
	Campaign CampaignSummary `json:"campaign"`
	Metrics  CampaignMetrics `json:"metrics"`
}

// NewCampaignMetrics derives the rate fields from raw counts. sent is the
// number of recipients whose SentAt is set.
func NewCampaignMetrics(total, sent int, counts map[EventType]int) CampaignMetrics {
	m := CampaignMetrics{
		TotalRecipients: total,
		Sent:            sent,
		Delivered:       counts[EventDelivered],
		Opened:          counts[EventOpened],
		Clicked:         counts[EventClicked],
		Bounced:         counts[EventBounced],
		Unsubscribed:    counts[EventUnsubscribed],
	}
	m.OpenRate = Rate(m.Opened, m.Delivered)
	m.ClickRate = Rate(m.Clicked, m.Delivered)
	m.BounceRate = Rate(m.Bounced, m.Sent)
	return m
}

// Rate formats part/whole as a percentage with two decimals, "0.00" when
// whole is zero.
func Rate(part, whole int) string {
	if whole <= 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(part)/float64(whole)*100)
}

// DashboardMetrics aggregates an owner's send activity. Queue and websocket
// fields are filled in by the API from live components.
type DashboardMetrics struct {
	Campaigns        map[CampaignStatus]int `json:"campaigns"`
	TotalRecipients  int                    `json:"total_recipients"`
	SentRecipients   int                    `json:"sent_recipients"`
	Events           map[EventType]int      `json:"events"`
	Suppressions     int                    `json:"suppressions"`
	QueueReady       int64                  `json:"queue_ready"`
	QueueInFlight    int64                  `json:"queue_in_flight"`
	DeadLetters      int64                  `json:"dead_letters"`
	WebSocketClients int                    `json:"websocket_clients"`
}
