package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

// SectionStateRepository abstracts persistence for cached section snapshots.
// SetSectionState must refuse with repository.ErrStaleSectionState when the
// section was deleted after version was read.
type SectionStateRepository interface {
	GetSectionState(ctx context.Context, sectionID string) (*models.SectionState, error)
	SectionStateVersion(ctx context.Context, sectionID string) (int64, error)
	SetSectionState(ctx context.Context, state *models.SectionState, version int64, ttl time.Duration) error
	DeleteSectionState(ctx context.Context, sectionID string) error
}

// SectionStateCache fronts section state reads with a short-lived cache.
// Cache failures never fail the request; the store stays authoritative.
type SectionStateCache struct {
	repo    SectionStateRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewSectionStateCache constructs the cache service.
func NewSectionStateCache(repo SectionStateRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *SectionStateCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionStateCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (c *SectionStateCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

// Get returns the cached snapshot and whether the lookup hit.
func (c *SectionStateCache) Get(ctx context.Context, sectionID string) (*models.SectionState, bool) {
	if !c.Enabled() {
		return nil, false
	}
	start := time.Now()
	state, err := c.repo.GetSectionState(ctx, sectionID)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("section state cache get failed", zap.String("section_id", sectionID), zap.Error(err))
		}
		return nil, false
	}
	return state, true
}

// Version returns the token to pass to Set for a snapshot about to be read.
// It reports false when the cache is off or unreachable.
func (c *SectionStateCache) Version(ctx context.Context, sectionID string) (int64, bool) {
	if !c.Enabled() {
		return 0, false
	}
	version, err := c.repo.SectionStateVersion(ctx, sectionID)
	if err != nil {
		c.logger.Warn("section state cache version failed", zap.String("section_id", sectionID), zap.Error(err))
		return 0, false
	}
	return version, true
}

// Set stores the snapshot for the configured TTL unless the section was
// invalidated after version was taken.
func (c *SectionStateCache) Set(ctx context.Context, state *models.SectionState, version int64) {
	if !c.Enabled() || state == nil {
		return
	}
	start := time.Now()
	err := c.repo.SetSectionState(ctx, state, version, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrStaleSectionState):
		c.logger.Debug("skipped stale section state", zap.String("section_id", state.SectionID))
	default:
		c.logger.Warn("section state cache set failed", zap.String("section_id", state.SectionID), zap.Error(err))
	}
}

// Invalidate drops the snapshot after a committed mutation.
func (c *SectionStateCache) Invalidate(ctx context.Context, sectionID string) {
	if !c.Enabled() {
		return
	}
	if err := c.repo.DeleteSectionState(ctx, sectionID); err != nil {
		c.logger.Warn("section state cache invalidate failed", zap.String("section_id", sectionID), zap.Error(err))
	}
}
