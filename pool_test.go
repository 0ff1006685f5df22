// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testPool = "test-pool"

func newTestPool(t *testing.T) (*Pool, redis.UniversalClient, *fakeWaiter) {
	t.Helper()
	_, client := setup(t)
	cfg, _ := newTestConfig()
	p := NewPoolFromRedisClient(testPool, client, cfg)
	return p, client, installWaiter(&p.opts)
}

// seedClaimed loads a pool where a, b, c and d are claimed and e is pending.
func seedClaimed(t *testing.T, client redis.UniversalClient) {
	t.Helper()
	err := client.ZAdd(context.Background(), testPool,
		redis.Z{Member: "a", Score: testTime - 10 + 600.1},
		redis.Z{Member: "b", Score: testTime - 5 + 600.1},
		redis.Z{Member: "c", Score: testTime - 2 + 600.1},
		redis.Z{Member: "d", Score: testTime + 600.1},
		redis.Z{Member: "e", Score: testTime + 5},
	).Err()
	require.NoError(t, err)
}

func seedPending(t *testing.T, client redis.UniversalClient, items ...string) {
	t.Helper()
	for _, item := range items {
		require.NoError(t, client.ZAdd(context.Background(), testPool, redis.Z{Member: item, Score: testTime}).Err())
	}
}

func score(t *testing.T, client redis.UniversalClient, item string) float64 {
	t.Helper()
	s, err := client.ZScore(context.Background(), testPool, item).Result()
	require.NoError(t, err)
	return s
}

func TestPoolCount(t *testing.T) {
	p, client, _ := newTestPool(t)
	ctx := context.Background()
	err := client.ZAdd(ctx, testPool,
		redis.Z{Member: "a", Score: testTime - 5},
		redis.Z{Member: "b", Score: testTime - 3},
		redis.Z{Member: "c", Score: testTime + 5},
	).Err()
	require.NoError(t, err)

	n, err := p.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	n, err = p.CountToProcess(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestPoolIsInPool(t *testing.T) {
	p, client, _ := newTestPool(t)
	ctx := context.Background()
	seedPending(t, client, "a", "b")

	for item, want := range map[string]bool{"a": true, "b": true, "whatever": false} {
		got, err := p.IsInPool(ctx, item)
		require.NoError(t, err)
		require.Equal(t, want, got, item)
	}
}

func TestPoolAddItem(t *testing.T) {
	p, client, w := newTestPool(t)
	ctx := context.Background()

	for _, item := range []string{"test1", "test2", "test3", "test2"} {
		require.NoError(t, p.AddItem(ctx, item))
	}

	got, err := client.ZRangeWithScores(ctx, testPool, 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []redis.Z{
		{Member: "test1", Score: testTime},
		{Member: "test2", Score: testTime},
		{Member: "test3", Score: testTime},
	}, got)
	require.Equal(t, 4, w.count())
}

func TestPoolAddItems(t *testing.T) {
	p, client, w := newTestPool(t)
	ctx := context.Background()
	p.opts.chunkSize = 2

	require.NoError(t, p.AddItems(ctx, []string{"test1", "test2", "test3", "test2"}))

	got, err := client.ZRange(ctx, testPool, 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"test1", "test2", "test3"}, got)
	require.Equal(t, 1, w.count())

	require.NoError(t, p.AddItems(ctx, nil))
	require.Equal(t, 1, w.count())
}

func TestPoolAddItemResetsClaim(t *testing.T) {
	p, client, _ := newTestPool(t)
	ctx := context.Background()
	seedClaimed(t, client)

	require.NoError(t, p.AddItem(ctx, "d"))
	require.Equal(t, float64(testTime), score(t, client, "d"))
}

func TestPoolGetItems(t *testing.T) {
	p, client, w := newTestPool(t)
	ctx := context.Background()
	seedPending(t, client, "a", "b", "c")

	got, err := p.GetItems(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)

	got, err = p.GetItems(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, got)

	got, err = p.GetItems(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, got)

	require.InDelta(t, testTime+600.1, score(t, client, "a"), 0.0001)
	require.Equal(t, 0, w.count())
}

func TestPoolGetItemsSkipsFutureItems(t *testing.T) {
	p, client, _ := newTestPool(t)
	ctx := context.Background()
	seedClaimed(t, client)

	got, err := p.GetItems(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPoolGetAllItems(t *testing.T) {
	p, client, _ := newTestPool(t)
	ctx := context.Background()
	p.opts.chunkSize = 2
	seedPending(t, client, "a", "b", "c", "d")

	got, err := p.GetAllItems(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestPoolAckItem(t *testing.T) {
	p, client, w := newTestPool(t)
	ctx := context.Background()
	seedClaimed(t, client)

	for _, item := range []string{"a", "c", "b"} {
		require.NoError(t, p.AckItem(ctx, item))
	}

	n, err := p.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	for _, item := range []string{"a", "b", "c"} {
		require.Equal(t, float64(testTime+129600), score(t, client, item), item)
	}
	require.InDelta(t, testTime+600.1, score(t, client, "d"), 0.0001)
	require.Equal(t, float64(testTime+5), score(t, client, "e"))
	require.Equal(t, 3, w.count())
}

func TestPoolAckItemsWaitsPerChunk(t *testing.T) {
	p, client, w := newTestPool(t)
	ctx := context.Background()
	p.opts.chunkSize = 2
	seedClaimed(t, client)

	require.NoError(t, p.AckItems(ctx, []string{"a", "c", "b"}))

	for _, item := range []string{"a", "b", "c"} {
		require.Equal(t, float64(testTime+129600), score(t, client, item), item)
	}
	require.Equal(t, 2, w.count())
}

func TestPoolAckOfPendingItemIsNoop(t *testing.T) {
	p, client, _ := newTestPool(t)
	ctx := context.Background()
	seedClaimed(t, client)

	require.NoError(t, p.AckItems(ctx, []string{"e", "missing"}))
	require.Equal(t, float64(testTime+5), score(t, client, "e"))

	ok, err := p.IsInPool(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPoolRemoveItem(t *testing.T) {
	p, client, _ := newTestPool(t)
	ctx := context.Background()
	seedClaimed(t, client)

	for _, item := range []string{"a", "d", "c", "e"} {
		require.NoError(t, p.RemoveItem(ctx, item))
	}

	got, err := client.ZRange(ctx, testPool, 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"e", "b"}, got)
}

func TestPoolRemoveItems(t *testing.T) {
	p, client, w := newTestPool(t)
	ctx := context.Background()
	p.opts.chunkSize = 2
	seedClaimed(t, client)

	require.NoError(t, p.RemoveItems(ctx, []string{"a"}))
	require.NoError(t, p.RemoveItems(ctx, []string{"d", "c", "e"}))

	got, err := client.ZRange(ctx, testPool, 0, -1).Result()
	require.NoError(t, err)
	require.Equal(t, []string{"e", "b"}, got)
	require.Equal(t, 3, w.count())
}

func TestPoolClearPool(t *testing.T) {
	p, client, w := newTestPool(t)
	ctx := context.Background()
	p.opts.chunkSize = 2
	seedClaimed(t, client)

	require.NoError(t, p.ClearPool(ctx))

	n, err := p.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 0, w.count())
}

func TestPoolStaleAckAfterReclaim(t *testing.T) {
	_, client := setup(t)
	cfg, clock := newTestConfig()
	cfg.AckTTL = 600 * time.Second
	workerA := NewPoolFromRedisClient(testPool, client, cfg)
	workerB := NewPoolFromRedisClient(testPool, client, cfg)
	ctx := context.Background()

	require.NoError(t, workerA.AddItem(ctx, "x"))
	got, err := workerA.GetItems(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, got)

	clock.Advance(599 * time.Second)
	got, err = workerB.GetItems(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, got, "claim is still valid")

	clock.Advance(2 * time.Second)
	got, err = workerB.GetItems(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, got)
	reclaimed := score(t, client, "x")
	require.InDelta(t, testTime+1201.1, reclaimed, 0.0001)

	// The first worker's claim is gone; its late ack must not touch B's claim.
	require.NoError(t, workerA.AckItem(ctx, "x"))
	require.NoError(t, workerA.RemoveItem(ctx, "x"))
	require.Equal(t, reclaimed, score(t, client, "x"))

	require.NoError(t, workerB.AckItem(ctx, "x"))
	require.Equal(t, float64(testTime+601+129600), score(t, client, "x"))
}

func TestPoolOverdueItemStaysClaimedForFullTTL(t *testing.T) {
	p, client, _ := newTestPool(t)
	ctx := context.Background()
	require.NoError(t, client.ZAdd(ctx, testPool, redis.Z{Member: "x", Score: testTime - 1000}).Err())

	got, err := p.GetItems(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, got)
	require.InDelta(t, testTime+600.1, score(t, client, "x"), 0.0001)

	got, err = p.GetItems(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPoolForgetsOldClaims(t *testing.T) {
	_, client := setup(t)
	cfg, clock := newTestConfig()
	p := NewPoolFromRedisClient(testPool, client, cfg)
	ctx := context.Background()

	require.NoError(t, p.AddItems(ctx, []string{"x", "y"}))
	_, err := p.GetItems(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, p.AckItems(ctx, []string{"x", "y"}))
	require.Len(t, p.claims, 2, "tokens outlive the ack")

	// Claims expired at testTime+600 and are kept for AckValidFor after that.
	clock.Advance((600 + 129600) * time.Second)
	_, err = p.GetItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, p.claims, 2)

	clock.Advance(time.Second)
	_, err = p.GetItems(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, p.claims)
}

func TestPoolAckFromAnotherProcess(t *testing.T) {
	_, client := setup(t)
	cfg, _ := newTestConfig()
	claimer := NewPoolFromRedisClient(testPool, client, cfg)
	acker := NewPoolFromRedisClient(testPool, client, cfg)
	ctx := context.Background()

	require.NoError(t, claimer.AddItems(ctx, []string{"a", "b"}))
	got, err := claimer.GetItems(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)

	// acker never claimed the items, so any current claim is accepted.
	require.NoError(t, acker.AckItem(ctx, "a"))
	require.NoError(t, acker.RemoveItems(ctx, []string{"b"}))
	require.Equal(t, float64(testTime+129600), score(t, client, "a"))
	ok, err := acker.IsInPool(ctx, "b")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPoolClaimAckScenario(t *testing.T) {
	_, client := setup(t)
	clock := clockwork.NewFakeClockAt(time.Unix(0, 0))
	p := NewPoolFromRedisClient(testPool, client, Config{
		Clock:       clock,
		AckTTL:      600 * time.Second,
		AckValidFor: 100 * time.Second,
		LogLevel:    ErrorLevel,
	})
	ctx := context.Background()

	require.NoError(t, p.AddItem(ctx, "x"))
	got, err := p.GetItems(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, got)
	require.InDelta(t, 600.1, score(t, client, "x"), 0.0001)

	clock.Advance(10 * time.Second)
	require.NoError(t, p.AckItem(ctx, "x"))
	require.Equal(t, float64(110), score(t, client, "x"))

	clock.Advance(99 * time.Second)
	got, err = p.GetItems(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, got)

	clock.Advance(1 * time.Second)
	got, err = p.GetItems(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, got)
}

func TestPoolRealUseCase(t *testing.T) {
	p, client, _ := newTestPool(t)
	ctx := context.Background()

	items := []string{"1", "2", "3", "4", "5", "6", "7"}
	require.NoError(t, p.AddItems(ctx, items))
	require.NoError(t, client.ZAdd(ctx, testPool, redis.Z{Member: "7", Score: testTime + 5}).Err())

	got, err := p.GetItems(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3"}, got)

	require.NoError(t, p.AckItem(ctx, "1"))
	require.NoError(t, p.AckItems(ctx, []string{"3"}))

	got, err = p.GetItems(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"4", "5", "6"}, got)

	require.NoError(t, p.AckItems(ctx, []string{"2", "4", "5"}))
	for _, item := range []string{"1", "2", "3", "4", "5"} {
		require.Equal(t, float64(testTime+129600), score(t, client, item), item)
	}
	require.InDelta(t, testTime+600.1, score(t, client, "6"), 0.0001)
	require.Equal(t, float64(testTime+5), score(t, client, "7"))

	require.NoError(t, p.RemoveItem(ctx, "7"))
	n, err := p.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)

	require.NoError(t, p.RemoveItems(ctx, []string{"6"}))
	n, err = p.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(6), n)
}
