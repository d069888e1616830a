package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

func (s *PostgresStore) RecordEvent(ctx context.Context, e *domain.EmailEvent) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO email_events (campaign_id, recipient_email, event_type, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, e.CampaignID, e.RecipientEmail, e.Type, e.Metadata).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting email event: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountEvents(ctx context.Context, campaignID string) (map[domain.EventType]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, COUNT(*) FROM email_events
		WHERE campaign_id = $1
		GROUP BY event_type
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventType]int)
	for rows.Next() {
		var t domain.EventType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scanning event count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) CountEventsForRecipient(ctx context.Context, campaignID, email string, t domain.EventType) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM email_events
		WHERE campaign_id = $1 AND recipient_email = $2 AND event_type = $3
	`, campaignID, email, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting recipient events: %w", err)
	}
	return n, nil
}
