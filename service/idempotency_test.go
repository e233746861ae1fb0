package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/remitgate/adapters/store"
	"github.com/layer-3/remitgate/core"
)

const transferRoute = "POST /api/transfers"

func newTestGuard(audit recordingSink) (*IdempotencyGuard, *store.MemoryIdempotencyStore) {
	s := store.NewMemoryIdempotencyStore()
	return NewIdempotencyGuard(s, time.Hour, audit, nil), s
}

func countingHandler(calls *int32, status int, body string) func(context.Context) (core.StoredResponse, error) {
	return func(context.Context) (core.StoredResponse, error) {
		atomic.AddInt32(calls, 1)
		return core.StoredResponse{Status: status, Body: []byte(body), Headers: map[string]string{"Content-Type": "application/json"}}, nil
	}
}

func TestIdempotencyGuard_ReplayAndConflict(t *testing.T) {
	ctx := context.Background()
	audit := newRecordingSink()
	g, _ := newTestGuard(audit)
	var calls int32

	first, replayed, err := g.Execute(ctx, "alice", transferRoute, "abc123", []byte(`{"amount":10}`), countingHandler(&calls, http.StatusCreated, `{"id":"t1"}`))
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := g.Execute(ctx, "alice", transferRoute, "abc123", []byte(`{ "amount": 10 }`), countingHandler(&calls, http.StatusCreated, `{"id":"t2"}`))
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, _, err = g.Execute(ctx, "alice", transferRoute, "abc123", []byte(`{"amount":20}`), countingHandler(&calls, http.StatusCreated, `{}`))
	assert.ErrorIs(t, err, core.ErrIdempotencyConflict)
	assert.Equal(t, core.KindConflict, core.KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, []core.AuditType{core.AuditIdempotencyConflict}, audit.types())
}

func TestIdempotencyGuard_ScopedByIdentity(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGuard(newRecordingSink())
	var calls int32

	_, _, err := g.Execute(ctx, "alice", transferRoute, "k", []byte(`{}`), countingHandler(&calls, http.StatusOK, `a`))
	require.NoError(t, err)
	_, replayed, err := g.Execute(ctx, "bob", transferRoute, "k", []byte(`{}`), countingHandler(&calls, http.StatusOK, `b`))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotencyGuard_NoKeyPassesThrough(t *testing.T) {
	ctx := context.Background()
	g, s := newTestGuard(newRecordingSink())
	var calls int32

	for i := 0; i < 3; i++ {
		_, replayed, err := g.Execute(ctx, "", transferRoute, "", []byte(`{}`), countingHandler(&calls, http.StatusOK, `ok`))
		require.NoError(t, err)
		assert.False(t, replayed)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Zero(t, s.Len())
}

func TestIdempotencyGuard_InvalidKey(t *testing.T) {
	g, _ := newTestGuard(newRecordingSink())
	var calls int32

	_, _, err := g.Execute(context.Background(), "", transferRoute, strings.Repeat("k", core.MaxIdempotencyKeyLength+1), nil, countingHandler(&calls, http.StatusOK, ``))
	assert.ErrorIs(t, err, core.ErrInvalidKey)
	assert.Zero(t, atomic.LoadInt32(&calls))

	assert.NoError(t, ValidateIdempotencyKey(strings.Repeat("k", core.MaxIdempotencyKeyLength)))
	assert.ErrorIs(t, ValidateIdempotencyKey("   "), core.ErrInvalidKey)
}

func TestIdempotencyGuard_FailuresAreNotCached(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGuard(newRecordingSink())
	var calls int32

	resp, replayed, err := g.Execute(ctx, "", transferRoute, "k", []byte(`x`), countingHandler(&calls, http.StatusBadGateway, `oops`))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, http.StatusBadGateway, resp.Status)

	_, _, err = g.Execute(ctx, "", transferRoute, "k", []byte(`x`), func(context.Context) (core.StoredResponse, error) {
		atomic.AddInt32(&calls, 1)
		return core.StoredResponse{}, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")

	resp, replayed, err = g.Execute(ctx, "", transferRoute, "k", []byte(`x`), countingHandler(&calls, http.StatusCreated, `done`))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestIdempotencyGuard_InFlight(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGuard(newRecordingSink())

	reservation, replay, err := g.Begin(ctx, "", transferRoute, "k", []byte(`{"a":1}`))
	require.NoError(t, err)
	require.NotNil(t, reservation)
	assert.Nil(t, replay)

	_, _, err = g.Begin(ctx, "", transferRoute, "k", []byte(`{"a":1}`))
	assert.ErrorIs(t, err, core.ErrIdempotencyInFlight)

	require.NoError(t, reservation.Finish(ctx, core.StoredResponse{Status: http.StatusOK, Body: []byte("r")}))
	_, replay, err = g.Begin(ctx, "", transferRoute, "k", []byte(`{"a":1}`))
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, []byte("r"), replay.Body)
}

func TestIdempotencyGuard_ConcurrentSingleExecution(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGuard(newRecordingSink())
	var calls int32
	release := make(chan struct{})

	handler := func(context.Context) (core.StoredResponse, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return core.StoredResponse{Status: http.StatusCreated, Body: []byte("once")}, nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := g.Execute(ctx, "", transferRoute, "same", []byte(`{}`), handler)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, core.ErrIdempotencyInFlight)
		}
	}
}

func TestIdempotencyGuard_KeyReusedOnAnotherRoute(t *testing.T) {
	ctx := context.Background()
	audit := newRecordingSink()
	g, _ := newTestGuard(audit)
	var calls int32
	body := []byte(`{"amount":"10"}`)

	_, _, err := g.Execute(ctx, "alice", transferRoute, "k", body, countingHandler(&calls, http.StatusCreated, `{"id":"t1"}`))
	require.NoError(t, err)

	_, replayed, err := g.Execute(ctx, "alice", "POST /api/payouts", "k", body, countingHandler(&calls, http.StatusCreated, `{"id":"p1"}`))
	assert.ErrorIs(t, err, core.ErrIdempotencyConflict)
	assert.False(t, replayed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, []core.AuditType{core.AuditIdempotencyConflict}, audit.types())
}

func TestRequestHash_Canonical(t *testing.T) {
	assert.Equal(t, RequestHash(transferRoute, []byte(`{"a":1,"b":[1,2]}`)), RequestHash(transferRoute, []byte(`{ "b": [1, 2], "a": 1 }`)))
	assert.NotEqual(t, RequestHash(transferRoute, []byte(`{"a":1}`)), RequestHash(transferRoute, []byte(`{"a":2}`)))
	assert.Equal(t, RequestHash(transferRoute, []byte(`plain`)), RequestHash(transferRoute, []byte(`plain`)))
	assert.NotEqual(t, RequestHash(transferRoute, []byte(`plain`)), RequestHash(transferRoute, []byte(`plain `)))
	assert.NotEqual(t, RequestHash(transferRoute, []byte(`{}`)), RequestHash("PUT /api/transfers", []byte(`{}`)))
	assert.Len(t, RequestHash(transferRoute, nil), 64)
}

func TestScopedKey(t *testing.T) {
	assert.Equal(t, "k", ScopedKey("", "k"))
	assert.Equal(t, "alice:k", ScopedKey("alice", "k"))
}
