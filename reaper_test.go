// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hemant/rqueue/internal/rdb"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestReaper(t *testing.T, drop bool) (*Reaper, clockwork.FakeClock, []string) {
	t.Helper()
	_, client := setup(t)
	clock := clockwork.NewFakeClockAt(time.Unix(testTime, 0))
	keys := seedStaleLists(t, client)
	r := NewReaperFromRedisClient(client, ReaperConfig{
		Queues:   []string{testQueue, " "},
		Interval: time.Minute,
		Timeout:  7 * time.Second,
		Drop:     drop,
		Clock:    clock,
		LogLevel: ErrorLevel,
	})
	t.Cleanup(r.Shutdown)
	return r, clock, keys
}

func TestReaperRecoversStaleItems(t *testing.T) {
	r, clock, _ := newTestReaper(t, false)
	require.Len(t, r.janitor.queues, 1)
	require.NoError(t, r.Start())

	clock.BlockUntil(1)
	clock.Advance(time.Minute)

	q := r.janitor.queues[0]
	require.Eventually(t, func() bool {
		n, err := q.Count(context.Background())
		return err == nil && n == 9
	}, time.Second, 10*time.Millisecond)

	leases, err := q.Leases(context.Background())
	require.NoError(t, err)
	require.Empty(t, leases)
}

func TestReaperDropsStaleItems(t *testing.T) {
	r, clock, keys := newTestReaper(t, true)
	require.NoError(t, r.Start())

	clock.BlockUntil(1)
	clock.Advance(time.Minute)

	q := r.janitor.queues[0]
	require.Eventually(t, func() bool {
		leases, err := q.Leases(context.Background())
		return err == nil && len(leases) == 0
	}, time.Second, 10*time.Millisecond)

	n, err := q.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	for _, key := range keys {
		n, err := q.broker.QueueLen(context.Background(), key)
		require.NoError(t, err)
		require.Zero(t, n)
	}
}

func TestReaperNothingStaleBeforeInterval(t *testing.T) {
	r, clock, _ := newTestReaper(t, false)
	require.NoError(t, r.Start())

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)

	leases, err := r.janitor.queues[0].Leases(context.Background())
	require.NoError(t, err)
	require.Len(t, leases, 3)
}

func TestReaperLifecycle(t *testing.T) {
	r, _, _ := newTestReaper(t, false)
	ctx := context.Background()

	require.NoError(t, r.Ping(ctx))
	require.NoError(t, r.Start())
	require.Error(t, r.Start())

	r.Stop()
	require.Error(t, r.Start())

	r.Shutdown()
	require.ErrorIs(t, r.Start(), ErrReaperClosed)
	require.NoError(t, r.Ping(ctx))

	// Shutdown is idempotent.
	r.Shutdown()
}

func TestReaperShutdownBeforeStart(t *testing.T) {
	r, _, _ := newTestReaper(t, false)
	r.Shutdown()
	require.NoError(t, r.Start())
}

func TestHealthChecker(t *testing.T) {
	mr, client := setup(t)
	clock := clockwork.NewFakeClockAt(time.Unix(testTime, 0))
	results := make(chan error, 1)
	hc := newHealthChecker(healthcheckerParams{
		logger:          newLogger(nil, ErrorLevel),
		broker:          rdb.NewRDB(client),
		clock:           clock,
		interval:        time.Second,
		healthcheckFunc: func(err error) { results <- err },
	})

	var wg sync.WaitGroup
	hc.start(&wg)

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	require.NoError(t, <-results)

	mr.Close()
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	require.Error(t, <-results)

	hc.shutdown()
	wg.Wait()
}

func TestHealthCheckerWithoutFunc(t *testing.T) {
	_, client := setup(t)
	hc := newHealthChecker(healthcheckerParams{
		logger:   newLogger(nil, ErrorLevel),
		broker:   rdb.NewRDB(client),
		clock:    clockwork.NewFakeClock(),
		interval: time.Second,
	})

	var wg sync.WaitGroup
	hc.start(&wg)
	hc.shutdown()
	wg.Wait()
}
