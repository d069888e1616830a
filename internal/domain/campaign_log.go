package domain

import "time"

type LogLevel string

const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

type CampaignLog struct {
	ID         string         `json:"id"`
	CampaignID string         `json:"campaign_id"`
	Level      LogLevel       `json:"level"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
