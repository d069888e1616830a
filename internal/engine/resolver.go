package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/Priya8975/campaign-mailer/internal/domain"
)

// Resolver turns a set of tags into the campaign audience.
type Resolver struct {
	contacts ContactStore
}

func NewResolver(contacts ContactStore) *Resolver {
	return &Resolver{contacts: contacts}
}

// Resolve returns every subscribed contact of ownerID carrying at least one
// of tagIDs, one entry per email address, ordered by email. When two
// contacts share an address the first one returned by the store wins.
func (r *Resolver) Resolve(ctx context.Context, ownerID string, tagIDs []string) ([]domain.ResolvedContact, error) {
	tagIDs = uniqueStrings(tagIDs)
	if len(tagIDs) == 0 {
		return nil, domain.NewValidationError("tag_ids", "at least one tag is required")
	}

	owned, err := r.contacts.OwnedTagIDs(ctx, ownerID, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("checking tag ownership: %w", err)
	}
	if len(owned) != len(tagIDs) {
		return nil, domain.NewValidationError("tag_ids", "one or more tags are invalid")
	}

	contacts, err := r.contacts.SubscribedContactsByTags(ctx, ownerID, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("loading contacts: %w", err)
	}

	seen := make(map[string]struct{}, len(contacts))
	out := make([]domain.ResolvedContact, 0, len(contacts))
	for _, c := range contacts {
		if c.Status != "" && c.Status != domain.ContactSubscribed {
			continue
		}
		key := domain.NormalizeEmail(c.Email)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, domain.ResolvedContact{ContactID: c.ID, Email: c.Email})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return domain.NormalizeEmail(out[i].Email) < domain.NormalizeEmail(out[j].Email)
	})
	return out, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
