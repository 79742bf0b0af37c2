package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recapd/recapd/pkg/config"
)

func newTestLimiter(t *testing.T, requests int64, windowSeconds int) (*Limiter, *MemoryStore) {
	t.Helper()
	cfg := &config.RateLimitConfig{
		Enabled:       config.BoolPtr(true),
		Requests:      requests,
		WindowSeconds: windowSeconds,
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	store := NewMemoryStore()
	limiter, err := New(cfg, store)
	require.NoError(t, err)
	return limiter, store
}

func TestLimiterAllowsWithinWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t, 5, 60)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.CheckAndRecord(ctx, "client-a")
		require.NoError(t, err, "request %d should be allowed", i+1)
		assert.True(t, result.Allowed)
	}
}

func TestLimiterRejectsSixthRequest(t *testing.T) {
	limiter, _ := newTestLimiter(t, 5, 60)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.CheckAndRecord(ctx, "client-a")
		require.NoError(t, err)
	}

	result, err := limiter.CheckAndRecord(ctx, "client-a")
	require.Error(t, err)
	assert.True(t, IsRateLimitError(err))
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))

	got := GetRateLimitResult(err)
	require.NotNil(t, got)
	assert.Equal(t, int64(0), got.Remaining)
}

func TestLimiterWindowReset(t *testing.T) {
	limiter, store := newTestLimiter(t, 5, 60)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		_, err := limiter.CheckAndRecord(ctx, "client-a")
		require.NoError(t, err)
	}
	_, err := limiter.CheckAndRecord(ctx, "client-a")
	require.True(t, IsRateLimitError(err))

	// Window elapses; the client is allowed again.
	now = now.Add(61 * time.Second)
	result, err := limiter.CheckAndRecord(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLimiterIsolatesClients(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 60)
	ctx := context.Background()

	_, err := limiter.CheckAndRecord(ctx, "client-a")
	require.NoError(t, err)
	_, err = limiter.CheckAndRecord(ctx, "client-a")
	require.True(t, IsRateLimitError(err))

	result, err := limiter.CheckAndRecord(ctx, "client-b")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLimiterCheckDoesNotCharge(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, 60)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		result, err := limiter.Check(ctx, "client-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "plain checks must not consume the budget")
	}
}

func TestLimiterDisabled(t *testing.T) {
	cfg := &config.RateLimitConfig{Enabled: config.BoolPtr(false)}
	cfg.SetDefaults()
	cfg.Enabled = config.BoolPtr(false)

	limiter, err := New(cfg, NewMemoryStore())
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		result, err := limiter.CheckAndRecord(context.Background(), "client-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestLimiterEmptyClientID(t *testing.T) {
	limiter, _ := newTestLimiter(t, 5, 60)
	_, err := limiter.Check(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidClientID)
}

func TestLimiterDeniedRequestsNotCharged(t *testing.T) {
	limiter, store := newTestLimiter(t, 1, 60)
	ctx := context.Background()

	_, err := limiter.CheckAndRecord(ctx, "client-a")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = limiter.CheckAndRecord(ctx, "client-a")
		require.True(t, IsRateLimitError(err))
	}

	count, _, err := store.GetUsage(ctx, "client-a", limiter.Window())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "denials must not consume window quota")
}

func TestLimiterConcurrentBurstChargesExactlyLimit(t *testing.T) {
	limiter, store := newTestLimiter(t, 5, 60)
	ctx := context.Background()

	var wg sync.WaitGroup
	var allowed atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := limiter.CheckAndRecord(ctx, "client-a"); err == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), allowed.Load())
	count, _, err := store.GetUsage(ctx, "client-a", limiter.Window())
	require.NoError(t, err)
	assert.Equal(t, int64(5), count, "losers of the burst must not be charged")
}

func TestStoreDeleteExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, _, charged, err := store.IncrementUsage(ctx, "client-a", time.Minute, 10)
	require.NoError(t, err)
	require.True(t, charged)
	require.Equal(t, 1, store.Size())

	require.NoError(t, store.DeleteExpired(ctx, time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, store.Size())
}
