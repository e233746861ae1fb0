package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/remitgate/core"
)

func TestMemoryIdempotencyStore_ReserveCompleteReplay(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryIdempotencyStore(WithClock(clock.Now))

	record, reserved, err := s.Reserve(ctx, "abc123", "hash-1", time.Hour)
	require.NoError(t, err)
	require.True(t, reserved)
	assert.Equal(t, core.IdempotencyPending, record.Status)

	record.Response = core.StoredResponse{Status: 201, Body: []byte(`{"ok":true}`)}
	require.NoError(t, s.Complete(ctx, record))

	existing, reserved, err := s.Reserve(ctx, "abc123", "hash-2", time.Hour)
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, core.IdempotencyCompleted, existing.Status)
	assert.Equal(t, "hash-1", existing.RequestHash)
	assert.Equal(t, []byte(`{"ok":true}`), existing.Response.Body)
}

func TestMemoryIdempotencyStore_ExpiredRecordIsAbsent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryIdempotencyStore(WithClock(clock.Now))

	record, _, err := s.Reserve(ctx, "k", "h1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, record))

	clock.Advance(2 * time.Minute)

	_, reserved, err := s.Reserve(ctx, "k", "h2", time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestMemoryIdempotencyStore_ReleaseOnlyPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore()

	_, _, err := s.Reserve(ctx, "pending", "h", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "pending"))
	_, reserved, err := s.Reserve(ctx, "pending", "h", time.Minute)
	require.NoError(t, err)
	assert.True(t, reserved)

	done, _, err := s.Reserve(ctx, "done", "h", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, done))
	require.NoError(t, s.Release(ctx, "done"))
	_, reserved, err = s.Reserve(ctx, "done", "h", time.Minute)
	require.NoError(t, err)
	assert.False(t, reserved)
}

func TestMemoryIdempotencyStore_SingleReservationUnderContention(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore()

	var wg sync.WaitGroup
	var owners atomic.Int32
	barrier := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-barrier
			_, reserved, err := s.Reserve(ctx, "same", "h", time.Minute)
			if err == nil && reserved {
				owners.Add(1)
			}
		}()
	}

	close(barrier)
	wg.Wait()

	assert.Equal(t, int32(1), owners.Load())
}

func TestMemoryIdempotencyStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryIdempotencyStore(WithClock(clock.Now))

	_, _, err := s.Reserve(ctx, "short", "h", time.Second)
	require.NoError(t, err)
	_, _, err = s.Reserve(ctx, "long", "h", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Sweep(clock.Now().Add(time.Minute)))
	assert.Equal(t, 1, s.Len())
}
