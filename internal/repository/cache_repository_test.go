package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

func TestCacheRepositoryWithoutRedis(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "k", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	require.NoError(t, repo.DeleteByPattern(ctx, "k*"))
}

func TestCacheRepositoryClaimInMemory(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	won, err := repo.Claim(ctx, "ending-soon:a1", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Claim(ctx, "ending-soon:a1", time.Hour)
	require.NoError(t, err)
	assert.False(t, won)

	won, err = repo.Claim(ctx, "ending-soon:short", time.Nanosecond)
	require.NoError(t, err)
	assert.True(t, won)
	time.Sleep(time.Millisecond)
	won, err = repo.Claim(ctx, "ending-soon:short", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)
}
