package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tipjar-social/contentcheck/moderation"
	"github.com/tipjar-social/contentcheck/moderation/cachestore"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDirectoryCID = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

func TestPurgeLabels(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := cachestore.NewMemLabelStore(10, time.Hour)
	a := moderation.ArtifactURL(moderation.DefaultResolverPrefix, testDirectoryCID, "a.png")
	b := moderation.ArtifactURL(moderation.DefaultResolverPrefix, testDirectoryCID, "b.png")
	assert.NoError(store.Remember(ctx, a, []string{"cat"}))
	assert.NoError(store.Remember(ctx, b, []string{"dog"}))

	n, err := purgeLabels(ctx, store, []string{a})
	assert.NoError(err)
	assert.Equal(1, n)

	_, ok, _ := store.Lookup(ctx, a)
	assert.False(ok)
	labels, ok, _ := store.Lookup(ctx, b)
	assert.True(ok)
	assert.Equal([]string{"dog"}, labels)
}

type failingForgetStore struct {
	cachestore.LabelStore
	forgotten []string
}

func (s *failingForgetStore) Forget(ctx context.Context, url string) error {
	if len(s.forgotten) == 1 {
		return errors.New("connection reset")
	}
	s.forgotten = append(s.forgotten, url)
	return nil
}

func TestPurgeLabelsStoreError(t *testing.T) {
	assert := assert.New(t)

	store := &failingForgetStore{}
	n, err := purgeLabels(context.Background(), store, []string{"x/1", "x/2", "x/3"})
	assert.Error(err)
	assert.Equal(1, n)
	assert.Equal([]string{"x/1"}, store.forgotten)
}

func TestPurgeLabelsCommand(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	redisURL := "redis://" + mr.Addr()

	seed, err := cachestore.NewRedisLabelStore(redisURL, time.Hour)
	require.NoError(err)
	a := moderation.ArtifactURL(moderation.DefaultResolverPrefix, testDirectoryCID, "a.png")
	b := moderation.ArtifactURL(moderation.DefaultResolverPrefix, testDirectoryCID, "b.png")
	require.NoError(seed.Remember(ctx, a, []string{"cat"}))
	require.NoError(seed.Remember(ctx, b, []string{"dog"}))

	require.NoError(run([]string{"contentcheck", "--redis-url", redisURL, "purge-labels", testDirectoryCID, "a.png"}))

	// a fresh store has no local tier, so this reads what redis holds
	check, err := cachestore.NewRedisLabelStore(redisURL, time.Hour)
	require.NoError(err)
	_, ok, err := check.Lookup(ctx, a)
	assert.NoError(err)
	assert.False(ok)
	_, ok, err = check.Lookup(ctx, b)
	assert.NoError(err)
	assert.True(ok)

	// the in-process cache can't be purged from another process
	assert.Error(run([]string{"contentcheck", "purge-labels", testDirectoryCID, "a.png"}))
	assert.Error(run([]string{"contentcheck", "--redis-url", redisURL, "purge-labels", testDirectoryCID}))
}
