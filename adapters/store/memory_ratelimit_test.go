package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateCounter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryRateCounter(WithClock(clock.Now))

	start := clock.Now()
	for i := int64(1); i <= 3; i++ {
		count, resetAt, err := c.Increment(ctx, "client|auth", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.Equal(t, start.Add(time.Minute), resetAt)
	}

	// Still inside the window at its exact end
	clock.Advance(time.Minute)
	count, _, err := c.Increment(ctx, "client|auth", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	clock.Advance(time.Millisecond)
	count, resetAt, err := c.Increment(ctx, "client|auth", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, clock.Now().Add(time.Minute), resetAt)
}

func TestMemoryRateCounter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryRateCounter()

	_, _, err := c.Increment(ctx, "a", time.Minute)
	require.NoError(t, err)
	count, _, err := c.Increment(ctx, "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, 2, c.Sweep(time.Now().Add(2*time.Minute)))
}
