package parser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SpacesRequestsPerHost(t *testing.T) {
	rl := NewRateLimiter(50*time.Millisecond, 1)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, rl.Wait(ctx, "a.example"))
	require.NoError(t, rl.Wait(ctx, "a.example"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	// A different host has its own bucket
	start = time.Now()
	require.NoError(t, rl.Wait(ctx, "b.example"))
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Wait(context.Background(), "host"))
	}
}

func TestRateLimiter_CancelledContext(t *testing.T) {
	rl := NewRateLimiter(time.Hour, 1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, rl.Wait(ctx, "host"))
	cancel()
	assert.Error(t, rl.Wait(ctx, "host"))
}
