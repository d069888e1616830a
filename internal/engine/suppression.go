package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

// SuppressionSet is a point-in-time snapshot of the global suppression list.
type SuppressionSet map[string]struct{}

func (s SuppressionSet) IsSuppressed(email string) bool {
	_, ok := s[domain.NormalizeEmail(email)]
	return ok
}

type SuppressionFilter struct {
	store  SuppressionStore
	logger *slog.Logger
}

func NewSuppressionFilter(store SuppressionStore, logger *slog.Logger) *SuppressionFilter {
	return &SuppressionFilter{store: store, logger: logger}
}

// Load reads the whole suppression list once. A dispatch pass checks every
// recipient against the same snapshot.
func (f *SuppressionFilter) Load(ctx context.Context) (SuppressionSet, error) {
	emails, err := f.store.SuppressedEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading suppression list: %w", err)
	}
	set := make(SuppressionSet, len(emails))
	for _, e := range emails {
		set[domain.NormalizeEmail(e)] = struct{}{}
	}
	return set, nil
}

// Suppress adds email to the list unless it is already there. It reports
// whether a new entry was created.
func (f *SuppressionFilter) Suppress(ctx context.Context, email, reason string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return false, domain.NewValidationError("email", "email is required")
	}
	created, err := f.store.Suppress(ctx, email, reason)
	if err != nil {
		return false, fmt.Errorf("suppressing %s: %w", email, err)
	}
	if created {
		f.logger.Info("address suppressed", "email", email, "reason", reason)
	}
	return created, nil
}

func (f *SuppressionFilter) List(ctx context.Context, limit int) ([]domain.SuppressionEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return f.store.ListSuppressions(ctx, limit)
}
