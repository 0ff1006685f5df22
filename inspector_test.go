// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestInspectorQueueInfo(t *testing.T) {
	_, client := setup(t)
	ctx := context.Background()
	keys := seedStaleLists(t, client)
	require.NoError(t, client.LPush(ctx, testQueue, "x", "y").Err())

	inspector := NewInspectorFromRedisClient(client)
	require.NoError(t, inspector.Ping(ctx))

	info, err := inspector.QueueInfo(ctx, testQueue)
	require.NoError(t, err)
	require.Equal(t, testQueue, info.Name)
	require.Equal(t, int64(2), info.Pending)
	require.Zero(t, info.Unique)
	require.Equal(t, 9, info.InFlight)
	require.Len(t, info.Leases, 3)
	require.Equal(t, keys[2], info.Leases[0].ProcessingKey)

	pending, err := inspector.PendingItems(ctx, testQueue)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, pending)
}

func TestInspectorUniqueQueueInfo(t *testing.T) {
	_, client := setup(t)
	ctx := context.Background()
	cfg, _ := newTestConfig()
	q := NewUniqueQueueFromRedisClient(testQueue, client, cfg)
	require.NoError(t, q.AddItems(ctx, []string{"a", "b", "a", "c"}))
	_, err := q.GetItems(ctx, 1)
	require.NoError(t, err)

	info, err := NewInspectorFromRedisClient(client).QueueInfo(ctx, testQueue)
	require.NoError(t, err)
	require.Equal(t, int64(2), info.Pending)
	require.Equal(t, int64(2), info.Unique)
	require.Equal(t, 1, info.InFlight)
	require.Len(t, info.Leases, 1)
	require.Equal(t, q.ClientID(), info.Leases[0].Owner)
	require.Equal(t, time.Unix(testTime, 0), info.Leases[0].ClaimedAt)
}

func TestInspectorQueueInfoRejectsBlankName(t *testing.T) {
	_, client := setup(t)
	_, err := NewInspectorFromRedisClient(client).QueueInfo(context.Background(), "  ")
	require.Error(t, err)
}

func TestInspectorPoolInfo(t *testing.T) {
	_, client := setup(t)
	ctx := context.Background()
	seedClaimed(t, client)

	inspector := NewInspectorFromRedisClient(client)
	inspector.clock = clockwork.NewFakeClockAt(time.Unix(testTime, 0))

	info, err := inspector.PoolInfo(ctx, testPool)
	require.NoError(t, err)
	require.Equal(t, &PoolInfo{Name: testPool, Total: 5, Ready: 0, Claimed: 4}, info)

	// Every claim has expired 601 seconds later.
	inspector.clock = clockwork.NewFakeClockAt(time.Unix(testTime+601, 0))
	info, err = inspector.PoolInfo(ctx, testPool)
	require.NoError(t, err)
	require.Equal(t, &PoolInfo{Name: testPool, Total: 5, Ready: 5, Claimed: 4}, info)
}

func TestIsClaimedScore(t *testing.T) {
	require.True(t, isClaimedScore(1444223059.1))
	require.False(t, isClaimedScore(1444223059))
	require.False(t, isClaimedScore(1444223059.001))
}
