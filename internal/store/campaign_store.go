package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/jackc/pgx/v5"
)

const campaignColumns = `
	c.id, c.owner_id, c.name, c.subject, c.sender_name, c.sender_email, c.content,
	c.template_id::text, c.status, c.scheduled_at, c.sent_at, c.created_at, c.updated_at,
	COALESCE((SELECT array_agg(ct.tag_id::text) FROM campaign_tags ct WHERE ct.campaign_id = c.id), '{}')`

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Subject, &c.SenderName, &c.SenderEmail, &c.Content,
		&c.TemplateID, &c.Status, &c.ScheduledAt, &c.SentAt, &c.CreatedAt, &c.UpdatedAt,
		&c.TagIDs,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(s.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+` FROM campaigns c WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying campaign: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, ownerID string, status domain.CampaignStatus) ([]domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns c WHERE c.owner_id = $1`
	args := []interface{}{ownerID}
	if status != "" {
		query += " AND c.status = $2"
		args = append(args, status)
	}
	query += " ORDER BY c.created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning campaign: %w", err)
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO campaigns (owner_id, name, subject, sender_name, sender_email, content, template_id, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, c.OwnerID, c.Name, c.Subject, c.SenderName, c.SenderEmail, c.Content, c.TemplateID, c.Status, c.ScheduledAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting campaign: %w", err)
	}

	if err := insertCampaignTags(ctx, tx, c.ID, c.TagIDs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCampaign(ctx context.Context, c *domain.Campaign) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE campaigns
		SET name = $2, subject = $3, sender_name = $4, sender_email = $5, content = $6,
			template_id = $7, scheduled_at = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, c.ID, c.Name, c.Subject, c.SenderName, c.SenderEmail, c.Content, c.TemplateID, c.ScheduledAt,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating campaign: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM campaign_tags WHERE campaign_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clearing campaign tags: %w", err)
	}
	if err := insertCampaignTags(ctx, tx, c.ID, c.TagIDs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertCampaignTags(ctx context.Context, tx pgx.Tx, campaignID string, tagIDs []string) error {
	for _, tagID := range tagIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO campaign_tags (campaign_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, campaignID, tagID)
		if err != nil {
			return fmt.Errorf("inserting campaign tag %s: %w", tagID, err)
		}
	}
	return nil
}

func (s *PostgresStore) DeleteCampaign(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting campaign: %w", err)
	}
	return nil
}

func (s *PostgresStore) CampaignStats(ctx context.Context, ownerID string) (*domain.CampaignStats, error) {
	var st domain.CampaignStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'DRAFT'),
			COUNT(*) FILTER (WHERE status = 'SCHEDULED'),
			COUNT(*) FILTER (WHERE status = 'SENT')
		FROM campaigns WHERE owner_id = $1
	`, ownerID).Scan(&st.Total, &st.Draft, &st.Scheduled, &st.Sent)
	if err != nil {
		return nil, fmt.Errorf("querying campaign stats: %w", err)
	}
	return &st, nil
}

// TransitionCampaign is a compare-and-set on status. sent_at is only
// overwritten when sentAt is non-nil.
func (s *PostgresStore) TransitionCampaign(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus, sentAt *time.Time) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE campaigns
		SET status = $2, sent_at = COALESCE($3, sent_at), updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, to, sentAt, fromStrs)
	if err != nil {
		return false, fmt.Errorf("transitioning campaign to %s: %w", to, err)
	}
	return result.RowsAffected() == 1, nil
}
