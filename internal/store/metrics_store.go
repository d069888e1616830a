package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

// DashboardMetrics returns aggregated send statistics for one owner.
func (s *PostgresStore) DashboardMetrics(ctx context.Context, ownerID string) (*domain.DashboardMetrics, error) {
	m := domain.DashboardMetrics{
		Campaigns: make(map[domain.CampaignStatus]int),
		Events:    make(map[domain.EventType]int),
	}

	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM campaigns WHERE owner_id = $1 GROUP BY status
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying campaign counts: %w", err)
	}
	for rows.Next() {
		var st domain.CampaignStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning campaign count: %w", err)
		}
		m.Campaigns[st] = n
	}
	rows.Close()

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(r.sent_at)
		FROM campaign_recipients r
		JOIN campaigns c ON c.id = r.campaign_id
		WHERE c.owner_id = $1
	`, ownerID).Scan(&m.TotalRecipients, &m.SentRecipients)
	if err != nil {
		return nil, fmt.Errorf("querying recipient counts: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT e.event_type, COUNT(*)
		FROM email_events e
		JOIN campaigns c ON c.id = e.campaign_id
		WHERE c.owner_id = $1
		GROUP BY e.event_type
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying event counts: %w", err)
	}
	for rows.Next() {
		var t domain.EventType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning event count: %w", err)
		}
		m.Events[t] = n
	}
	rows.Close()

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM suppressions`).Scan(&m.Suppressions)
	if err != nil {
		return nil, fmt.Errorf("querying suppression count: %w", err)
	}

	return &m, nil
}
