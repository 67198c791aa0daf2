package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecastify/api/internal/cache"
	"github.com/forecastify/api/pkg/models"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c, mr
}

func TestSetGetDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "k", []byte(`{"a":1}`), time.Minute))

	val, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte(`{"a":1}`), val)

	require.NoError(t, c.Delete(ctx, "k"))

	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestJobStatusRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	jobID := uuid.New()

	_, found, err := c.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetJobStatus(ctx, jobID, models.StatusProcessing, time.Minute))

	status, found, err := c.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.StatusProcessing, status)

	// Terminal overwrite, as the pipeline's finish path does.
	require.NoError(t, c.SetJobStatus(ctx, jobID, models.StatusCompleted, time.Minute))

	status, _, err = c.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)
}

func TestJobStatusExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	jobID := uuid.New()

	require.NoError(t, c.SetJobStatus(ctx, jobID, models.StatusCompleted, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, found, err := c.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIncrWithExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	key := cache.RateLimitKey("fc_01234")

	for want := int64(1); want <= 3; want++ {
		count, err := c.IncrWithExpiry(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	// Window reset starts the count over.
	mr.FastForward(2 * time.Minute)

	count, err := c.IncrWithExpiry(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestKeys(t *testing.T) {
	jobID := uuid.MustParse("8a9a2c2e-1111-4222-8333-444455556666")
	userID := uuid.MustParse("00000000-0000-4000-8000-000000000001")

	assert.Equal(t, "forecast:job:8a9a2c2e-1111-4222-8333-444455556666", cache.JobStatusKey(jobID))
	assert.Equal(t, "forecast:jobrec:8a9a2c2e-1111-4222-8333-444455556666", cache.JobRecordKey(jobID))
	assert.Equal(t, "forecast:latest:00000000-0000-4000-8000-000000000001", cache.LatestJobKey(userID))
	assert.Equal(t, "ratelimit:fc_01234", cache.RateLimitKey("fc_01234"))
}
