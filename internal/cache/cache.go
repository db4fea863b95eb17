package cache

import (
	"context"
	"time"

	"nurbuild/backend/internal/domain"
)

// SummaryCache holds the computed portfolio summary between mutations.
type SummaryCache interface {
	Get(ctx context.Context, key string) (*domain.DebtSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.DebtSummary, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SummaryKey scopes a cached summary to one UTC day, since overdue
// counts change at midnight.
func SummaryKey(day time.Time) string {
	return "debt-summary:" + domain.DateOf(day).Format(domain.DateLayout)
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.DebtSummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *domain.DebtSummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Delete(_ context.Context, _ ...string) error {
	return nil
}
