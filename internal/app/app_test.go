package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildRepositoriesKeepsClaimStoreWithoutRedis(t *testing.T) {
	a := &App{Logger: zap.NewNop()}
	a.buildRepositories()

	require.NotNil(t, a.Repos.Cache)
	ctx := context.Background()
	won, err := a.Repos.Cache.Claim(ctx, "ending-soon:a1", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = a.Repos.Cache.Claim(ctx, "ending-soon:a1", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)
}
