package report

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"nurbuild/backend/internal/cache"
	"nurbuild/backend/internal/domain"
	"nurbuild/backend/internal/logger"
)

// Engine serves the portfolio summary through the summary cache. The
// aggregation helpers in this package are pure and used directly.
//
// generation is bumped by every Invalidate. A summary loaded across a bump
// is returned but not cached, so a load that raced a mutation cannot
// repopulate the cache with pre-mutation figures.
type Engine struct {
	cache      cache.SummaryCache
	cacheTTL   time.Duration
	generation atomic.Uint64
	log        zerolog.Logger
}

func NewEngine(cacheStore cache.SummaryCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopSummaryCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		log:      logger.WithComponent("report"),
	}
}

// Summary returns the cached summary for today or computes it from load.
// Cache failures degrade to a recompute.
func (e *Engine) Summary(
	ctx context.Context,
	today time.Time,
	load func(ctx context.Context) ([]domain.Debt, error),
) (domain.DebtSummary, error) {
	key := cache.SummaryKey(today)
	cached, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("summary cache read failed")
	}
	if err == nil && ok {
		return *cached, nil
	}

	generation := e.generation.Load()
	debts, err := load(ctx)
	if err != nil {
		return domain.DebtSummary{}, err
	}

	summary := Summarize(debts, today)
	if e.generation.Load() != generation {
		return summary, nil
	}
	if err := e.cache.Set(ctx, key, &summary, e.cacheTTL); err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("summary cache write failed")
	}
	return summary, nil
}

// Invalidate drops the cached summary for today.
func (e *Engine) Invalidate(ctx context.Context, today time.Time) {
	e.generation.Add(1)
	if err := e.cache.Delete(ctx, cache.SummaryKey(today)); err != nil {
		e.log.Warn().Err(err).Msg("summary cache invalidation failed")
	}
}
