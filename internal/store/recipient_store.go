package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/jackc/pgx/v5"
)

// AddRecipients inserts one row per contact in a single batch; the unique
// (campaign_id, lower(email)) index makes duplicates a no-op.
func (s *PostgresStore) AddRecipients(ctx context.Context, campaignID string, contacts []domain.ResolvedContact) (int, error) {
	if len(contacts) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range contacts {
		batch.Queue(`
			INSERT INTO campaign_recipients (campaign_id, contact_id, email)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, campaignID, c.ContactID, c.Email)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	added := 0
	for range contacts {
		tag, err := br.Exec()
		if err != nil {
			return added, fmt.Errorf("inserting recipient: %w", err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

func (s *PostgresStore) DeleteRecipients(ctx context.Context, campaignID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM campaign_recipients WHERE campaign_id = $1`, campaignID); err != nil {
		return fmt.Errorf("deleting recipients: %w", err)
	}
	return nil
}

func (s *PostgresStore) UnsentRecipients(ctx context.Context, campaignID string) ([]domain.RecipientContact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.campaign_id, COALESCE(r.contact_id::text, ''), r.email, r.sent_at, r.created_at,
			   COALESCE(ct.first_name, ''), COALESCE(ct.last_name, '')
		FROM campaign_recipients r
		LEFT JOIN contacts ct ON ct.id = r.contact_id
		WHERE r.campaign_id = $1 AND r.sent_at IS NULL AND r.skipped_at IS NULL
		ORDER BY r.email
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("querying unsent recipients: %w", err)
	}
	defer rows.Close()

	recipients := []domain.RecipientContact{}
	for rows.Next() {
		var r domain.RecipientContact
		err := rows.Scan(&r.ID, &r.CampaignID, &r.ContactID, &r.Email, &r.SentAt, &r.CreatedAt,
			&r.FirstName, &r.LastName)
		if err != nil {
			return nil, fmt.Errorf("scanning recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

func (s *PostgresStore) GetRecipient(ctx context.Context, id string) (*domain.Recipient, error) {
	var r domain.Recipient
	err := s.pool.QueryRow(ctx, `
		SELECT id, campaign_id, COALESCE(contact_id::text, ''), email, sent_at, skipped_at, created_at
		FROM campaign_recipients WHERE id = $1
	`, id).Scan(&r.ID, &r.CampaignID, &r.ContactID, &r.Email, &r.SentAt, &r.SkippedAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying recipient: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, recipientID string, at time.Time) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE campaign_recipients SET sent_at = $2
		WHERE id = $1 AND sent_at IS NULL
	`, recipientID, at)
	if err != nil {
		return false, fmt.Errorf("marking recipient sent: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (s *PostgresStore) CountRecipients(ctx context.Context, campaignID string) (int, int, error) {
	var total, sent int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(sent_at) FROM campaign_recipients
		WHERE campaign_id = $1 AND skipped_at IS NULL
	`, campaignID).Scan(&total, &sent)
	if err != nil {
		return 0, 0, fmt.Errorf("counting recipients: %w", err)
	}
	return total, sent, nil
}

func (s *PostgresStore) SkipRecipients(ctx context.Context, recipientIDs []string, at time.Time) error {
	if len(recipientIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE campaign_recipients SET skipped_at = $2
		WHERE id = ANY($1::uuid[]) AND sent_at IS NULL AND skipped_at IS NULL
	`, recipientIDs, at)
	if err != nil {
		return fmt.Errorf("skipping recipients: %w", err)
	}
	return nil
}
