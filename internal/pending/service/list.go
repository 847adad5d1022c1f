package service

import (
	"context"
	"slices"

	"enrollgate/internal/pending/models"
	"enrollgate/pkg/requestcontext"
)

// List returns registrations in insertion order, or by expiry when the
// filter asks for it. Expired records are hidden unless IncludeExpired is set.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.View, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, s.translate(ctx, "list", err)
	}

	now := requestcontext.Now(ctx)
	views := make([]*models.View, 0, len(all))
	for _, reg := range all {
		if reg.IsExpired(now) && !filter.IncludeExpired {
			continue
		}
		if !filter.Matches(reg, now) {
			continue
		}
		views = append(views, s.view(reg, now))
	}
	if filter.SortByExpiry {
		slices.SortStableFunc(views, func(a, b *models.View) int {
			return a.Registration.ExpiresAt.Compare(b.Registration.ExpiresAt)
		})
	}
	return views, nil
}
