package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/campaign-mailer/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (s *PostgresStore) OwnedTagIDs(ctx context.Context, ownerID string, tagIDs []string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text FROM tags WHERE owner_id = $1 AND id::text = ANY($2)
	`, ownerID, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("querying owned tags: %w", err)
	}
	defer rows.Close()

	owned := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tag id: %w", err)
		}
		owned = append(owned, id)
	}
	return owned, rows.Err()
}

// SubscribedContactsByTags returns subscribed contacts carrying any of the
// given tags, oldest first. Deduplication by email is left to the caller.
func (s *PostgresStore) SubscribedContactsByTags(ctx context.Context, ownerID string, tagIDs []string) ([]domain.Contact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.owner_id, c.email, c.first_name, c.last_name, c.status, c.created_at,
			   COALESCE((SELECT array_agg(t.tag_id::text) FROM contact_tags t WHERE t.contact_id = c.id), '{}')
		FROM contacts c
		WHERE c.owner_id = $1
		  AND c.status = 'SUBSCRIBED'
		  AND EXISTS (
			SELECT 1 FROM contact_tags ct
			WHERE ct.contact_id = c.id AND ct.tag_id::text = ANY($2)
		  )
		ORDER BY c.created_at, c.id
	`, ownerID, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("querying contacts by tags: %w", err)
	}
	defer rows.Close()

	contacts := []domain.Contact{}
	for rows.Next() {
		var c domain.Contact
		err := rows.Scan(&c.ID, &c.OwnerID, &c.Email, &c.FirstName, &c.LastName, &c.Status, &c.CreatedAt, &c.TagIDs)
		if err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *PostgresStore) SampleContact(ctx context.Context, ownerID string) (*domain.Contact, error) {
	var c domain.Contact
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, email, first_name, last_name, status, created_at
		FROM contacts
		WHERE owner_id = $1 AND status = 'SUBSCRIBED'
		ORDER BY created_at
		LIMIT 1
	`, ownerID).Scan(&c.ID, &c.OwnerID, &c.Email, &c.FirstName, &c.LastName, &c.Status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying sample contact: %w", err)
	}
	return &c, nil
}

// SetContactStatus updates every contact with this address, across owners.
func (s *PostgresStore) SetContactStatus(ctx context.Context, email string, status domain.ContactStatus) (int, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE contacts SET status = $2 WHERE lower(email) = lower($1)
	`, email, status)
	if err != nil {
		return 0, fmt.Errorf("updating contact status: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var t domain.Template
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, html FROM templates WHERE id = $1
	`, id).Scan(&t.ID, &t.OwnerID, &t.Name, &t.HTML)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying template: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) GetOwner(ctx context.Context, id string) (*domain.Owner, error) {
	var o domain.Owner
	err := s.pool.QueryRow(ctx, `
		SELECT id, company_name, company_address FROM owners WHERE id = $1
	`, id).Scan(&o.ID, &o.CompanyName, &o.CompanyAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying owner: %w", err)
	}
	return &o, nil
}
