package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

func (s *PostgresStore) AppendLog(ctx context.Context, l *domain.CampaignLog) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO campaign_logs (campaign_id, level, message, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, l.CampaignID, l.Level, l.Message, l.Metadata).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting campaign log: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentLogs(ctx context.Context, campaignID string, limit int) ([]domain.CampaignLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, campaign_id, level, message, metadata, created_at
		FROM campaign_logs
		WHERE campaign_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying campaign logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.CampaignLog{}
	for rows.Next() {
		var l domain.CampaignLog
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.Level, &l.Message, &l.Metadata, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning campaign log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
