package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

func (s *PostgresStore) SuppressedEmails(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT email FROM suppressions`)
	if err != nil {
		return nil, fmt.Errorf("querying suppressions: %w", err)
	}
	defer rows.Close()

	emails := []string{}
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scanning suppression: %w", err)
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

func (s *PostgresStore) ListSuppressions(ctx context.Context, limit int) ([]domain.SuppressionEntry, error) {
	query := `SELECT email, reason, created_at FROM suppressions ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying suppressions: %w", err)
	}
	defer rows.Close()

	entries := []domain.SuppressionEntry{}
	for rows.Next() {
		var e domain.SuppressionEntry
		if err := rows.Scan(&e.Email, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning suppression: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Suppress inserts the address unless it is already present; the first
// reason recorded wins.
func (s *PostgresStore) Suppress(ctx context.Context, email, reason string) (bool, error) {
	result, err := s.pool.Exec(ctx, `
		INSERT INTO suppressions (email, reason) VALUES ($1, $2)
		ON CONFLICT (email) DO NOTHING
	`, domain.NormalizeEmail(email), reason)
	if err != nil {
		return false, fmt.Errorf("inserting suppression: %w", err)
	}
	return result.RowsAffected() == 1, nil
}
