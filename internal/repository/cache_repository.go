package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

const (
	sectionStateKeyPrefix   = "registrar:section-state:"
	sectionVersionKeyPrefix = "registrar:section-version:"
	sectionVersionTTL       = 24 * time.Hour
)

// ErrStaleSectionState reports a snapshot write skipped because the section
// was invalidated after the snapshot was read.
var ErrStaleSectionState = errors.New("section state snapshot is stale")

// SectionStateKey returns the Redis key caching a section's seat snapshot.
func SectionStateKey(sectionID string) string {
	return sectionStateKeyPrefix + sectionID
}

// SectionVersionKey returns the Redis key counting a section's invalidations.
func SectionVersionKey(sectionID string) string {
	return sectionVersionKeyPrefix + sectionID
}

// CacheRepository stores section state snapshots in Redis. A nil client turns
// every call into a miss or a no-op.
type CacheRepository struct {
	client *redis.Client
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client) *CacheRepository {
	return &CacheRepository{client: client}
}

// GetSectionState returns appErrors.ErrCacheMiss when nothing is cached.
func (r *CacheRepository) GetSectionState(ctx context.Context, sectionID string) (*models.SectionState, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	key := SectionStateKey(sectionID)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var state models.SectionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return &state, nil
}

// SectionStateVersion returns the section's invalidation counter. Read it
// before loading the snapshot that will be passed to SetSectionState.
func (r *CacheRepository) SectionStateVersion(ctx context.Context, sectionID string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	key := SectionVersionKey(sectionID)
	version, err := r.client.Get(ctx, key).Int64()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return version, nil
}

// SetSectionState caches the snapshot for ttl unless the section was
// invalidated since version was read, in which case it returns
// ErrStaleSectionState and writes nothing.
func (r *CacheRepository) SetSectionState(ctx context.Context, state *models.SectionState, version int64, ttl time.Duration) error {
	if r.client == nil || state == nil {
		return nil
	}

	key := SectionStateKey(state.SectionID)
	versionKey := SectionVersionKey(state.SectionID)
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != version {
			return ErrStaleSectionState
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}, versionKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleSectionState), errors.Is(err, redis.TxFailedErr):
		return ErrStaleSectionState
	default:
		return fmt.Errorf("redis set %s: %w", key, err)
	}
}

// DeleteSectionState drops the cached snapshot after a committed mutation and
// bumps the version so in-flight readers do not write an older snapshot back.
func (r *CacheRepository) DeleteSectionState(ctx context.Context, sectionID string) error {
	if r.client == nil {
		return nil
	}
	key := SectionStateKey(sectionID)
	versionKey := SectionVersionKey(sectionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, sectionVersionTTL)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
