package reviews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// Collector returns the normalized sample set for one (app, tier) bucket.
type Collector interface {
	Collect(ctx context.Context, appID string, tier int) ([]models.Review, error)
}

// CachedCollector reads through the cache: a fresh entry short-circuits the
// remote call; a miss fetches, normalizes, and writes back.
type CachedCollector struct {
	source       Source
	cache        cache.Cache
	perTierLimit int
}

// NewCachedCollector creates a Collector backed by source and cache.
func NewCachedCollector(source Source, ca cache.Cache, perTierLimit int) *CachedCollector {
	return &CachedCollector{
		source:       source,
		cache:        ca,
		perTierLimit: perTierLimit,
	}
}

// Collect returns samples for (appID, tier). ErrAppNotFound propagates so
// the pipeline can abort; any other source failure is the caller's to
// soft-fail. Cache errors degrade to remote fetches rather than failing.
func (c *CachedCollector) Collect(ctx context.Context, appID string, tier int) ([]models.Review, error) {
	cached, found, err := c.cache.GetReviews(ctx, appID, tier)
	if err != nil {
		slog.Warn("review cache read failed", "app_id", appID, "tier", tier, "error", err)
	}
	if found {
		return cached, nil
	}

	raw, err := c.source.Fetch(ctx, appID, tier, c.perTierLimit)
	if err != nil {
		if errors.Is(err, ErrAppNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("fetching tier %d reviews: %w", tier, err)
	}

	normalized := NormalizeAll(raw)

	if err := c.cache.SetReviews(ctx, appID, tier, normalized); err != nil {
		slog.Warn("review cache write failed", "app_id", appID, "tier", tier, "error", err)
	}

	return normalized, nil
}

var _ Collector = (*CachedCollector)(nil)
