package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

func TestSectionStateKey(t *testing.T) {
	assert.Equal(t, "registrar:section-state:sec-1", SectionStateKey("sec-1"))
	assert.Equal(t, "registrar:section-version:sec-1", SectionVersionKey("sec-1"))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	ctx := context.Background()

	_, err := repo.GetSectionState(ctx, "sec-1")
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	version, err := repo.SectionStateVersion(ctx, "sec-1")
	assert.NoError(t, err)
	assert.Zero(t, version)
	assert.NoError(t, repo.SetSectionState(ctx, &models.SectionState{SectionID: "sec-1"}, version, time.Minute))
	assert.NoError(t, repo.DeleteSectionState(ctx, "sec-1"))
	assert.NoError(t, repo.Close())
}

func TestCacheRepositoryUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	repo := NewCacheRepository(client)
	defer repo.Close()
	ctx := context.Background()

	_, err := repo.GetSectionState(ctx, "sec-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)
	_, err = repo.SectionStateVersion(ctx, "sec-1")
	assert.Error(t, err)
	err = repo.SetSectionState(ctx, &models.SectionState{SectionID: "sec-1"}, 0, time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStaleSectionState)
	assert.NoError(t, repo.SetSectionState(ctx, nil, 0, time.Minute))
	assert.Error(t, repo.DeleteSectionState(ctx, "sec-1"))
}
