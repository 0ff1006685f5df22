// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestUniqueQueue(t *testing.T) (*UniqueQueue, redis.UniversalClient, *fakeWaiter) {
	t.Helper()
	_, client := setup(t)
	cfg, _ := newTestConfig()
	q := NewUniqueQueueFromRedisClient(testQueue, client, cfg)
	return q, client, installWaiter(&q.opts)
}

func smembers(t *testing.T, client redis.UniversalClient, key string) []string {
	t.Helper()
	members, err := client.SMembers(context.Background(), key).Result()
	require.NoError(t, err)
	sort.Strings(members)
	return members
}

func TestUniqueQueueSetName(t *testing.T) {
	q, _, _ := newTestUniqueQueue(t)
	require.Equal(t, testQueue+"-unique", q.SetName())
}

func TestUniqueQueueAddItems(t *testing.T) {
	q, client, w := newTestUniqueQueue(t)
	ctx := context.Background()

	require.NoError(t, q.AddItems(ctx, []string{"first-message", "second-message", "first-message"}))

	got, err := client.RPop(ctx, testQueue).Result()
	require.NoError(t, err)
	require.Equal(t, "first-message", got)
	got, err = client.RPop(ctx, testQueue).Result()
	require.NoError(t, err)
	require.Equal(t, "second-message", got)
	_, err = client.RPop(ctx, testQueue).Result()
	require.ErrorIs(t, err, redis.Nil)

	require.Equal(t, []string{"first-message", "second-message"}, smembers(t, client, q.SetName()))
	require.Equal(t, 1, w.count())
}

func TestUniqueQueueAddItem(t *testing.T) {
	q, client, w := newTestUniqueQueue(t)
	ctx := context.Background()

	for _, item := range []string{"3", "5", "3", "1"} {
		require.NoError(t, q.AddItem(ctx, item))
	}

	require.Equal(t, []string{"1", "5", "3"}, lrange(t, client, testQueue))
	n, err := q.SetSize(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.Equal(t, 4, w.count())
}

func TestUniqueQueueGetItemsLeavesSet(t *testing.T) {
	q, client, w := newTestUniqueQueue(t)
	ctx := context.Background()
	require.NoError(t, q.AddItems(ctx, []string{"a", "b", "c"}))

	got, err := q.GetItems(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)

	require.Equal(t, []string{"c"}, smembers(t, client, q.SetName()))
	require.Equal(t, []string{"b", "a"}, lrange(t, client, q.ProcessingQueueName()))
	require.Equal(t, map[string]string{q.ProcessingQueueName(): "1444222459"}, hgetall(t, client, q.TimeoutsHashName()))
	require.Equal(t, 1, w.count())
}

func TestUniqueQueueReAddWhileInFlight(t *testing.T) {
	q, client, _ := newTestUniqueQueue(t)
	ctx := context.Background()
	require.NoError(t, q.AddItem(ctx, "a"))

	got, err := q.GetItems(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, got)

	// The claimed copy no longer blocks producers.
	require.NoError(t, q.AddItem(ctx, "a"))
	require.Equal(t, []string{"a"}, lrange(t, client, testQueue))

	// Rejecting the claimed copy keeps a single pending one.
	require.NoError(t, q.RejectItem(ctx, "a"))
	require.Equal(t, []string{"a"}, lrange(t, client, testQueue))
	require.Equal(t, []string{"a"}, smembers(t, client, q.SetName()))
	require.Empty(t, lrange(t, client, q.ProcessingQueueName()))
}

func TestUniqueQueueAckItems(t *testing.T) {
	q, client, w := newTestUniqueQueue(t)
	ctx := context.Background()
	seedProcessing(t, client, q.ProcessingQueueName(), "1", "5", "5", "3")

	require.NoError(t, q.AckItems(ctx, []string{"1", "5"}))
	require.Equal(t, []string{"3", "5"}, lrange(t, client, q.ProcessingQueueName()))

	require.NoError(t, q.AckItems(ctx, []string{"5", "3"}))
	require.Empty(t, lrange(t, client, q.ProcessingQueueName()))
	require.Empty(t, hgetall(t, client, q.TimeoutsHashName()))
	require.Empty(t, smembers(t, client, q.SetName()))
	require.Equal(t, 2, w.count())
}

func TestUniqueQueueRejectItem(t *testing.T) {
	q, client, w := newTestUniqueQueue(t)
	ctx := context.Background()
	seedProcessing(t, client, q.ProcessingQueueName(), "1", "5", "5", "3")

	for _, item := range []string{"1", "5", "1"} {
		require.NoError(t, q.RejectItem(ctx, item))
	}

	require.Equal(t, []string{"1", "5"}, lrange(t, client, testQueue))
	require.Equal(t, []string{"3", "5"}, lrange(t, client, q.ProcessingQueueName()))

	for _, item := range []string{"3", "5"} {
		require.NoError(t, q.RejectItem(ctx, item))
	}

	require.Equal(t, []string{"1", "5", "3"}, lrange(t, client, testQueue))
	require.Equal(t, []string{"1", "3", "5"}, smembers(t, client, q.SetName()))
	require.Empty(t, lrange(t, client, q.ProcessingQueueName()))
	require.Empty(t, hgetall(t, client, q.TimeoutsHashName()))
	require.Equal(t, 5, w.count())
}

func TestUniqueQueueRejectItems(t *testing.T) {
	q, client, w := newTestUniqueQueue(t)
	ctx := context.Background()
	seedProcessing(t, client, q.ProcessingQueueName(), "1", "5", "5", "3", "6", "7")

	require.NoError(t, q.RejectItems(ctx, []string{"1", "5"}))
	require.NoError(t, q.RejectItems(ctx, []string{"5"}))
	require.NoError(t, q.RejectItems(ctx, []string{"9"}))

	require.Equal(t, []string{"5", "1"}, lrange(t, client, testQueue))
	require.Equal(t, []string{"7", "6", "3"}, lrange(t, client, q.ProcessingQueueName()))

	require.NoError(t, q.RejectItems(ctx, []string{"3", "6", "7"}))

	require.Equal(t, []string{"5", "1", "7", "6", "3"}, lrange(t, client, testQueue))
	require.Empty(t, lrange(t, client, q.ProcessingQueueName()))
	require.Equal(t, 4, w.count())
}

func TestUniqueQueueReEnqueueTimeoutItems(t *testing.T) {
	q, client, w := newTestUniqueQueue(t)
	ctx := context.Background()
	keys := seedStaleLists(t, client)

	n, err := q.ReEnqueueTimeoutItems(ctx, 7*time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Equal(t, []string{"6", "4", "3", "5", "1"}, lrange(t, client, testQueue))
	require.Equal(t, []string{"8", "7", "4"}, lrange(t, client, keys[2]))
	require.Equal(t, map[string]string{keys[2]: "1444222454.25"}, hgetall(t, client, q.TimeoutsHashName()))

	n, err = q.ReEnqueueTimeoutItems(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Equal(t, []string{"6", "3", "5", "1", "8", "7", "4"}, lrange(t, client, testQueue))
	require.Equal(t, []string{"1", "3", "4", "5", "6", "7", "8"}, smembers(t, client, q.SetName()))
	require.Empty(t, hgetall(t, client, q.TimeoutsHashName()))
	require.Equal(t, 2, w.count())
}

func TestUniqueQueueReEnqueueAllItems(t *testing.T) {
	q, client, w := newTestUniqueQueue(t)
	ctx := context.Background()
	seedStaleLists(t, client)

	n, err := q.ReEnqueueAllItems(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.Equal(t, []string{"8", "7", "6", "4", "3", "5", "1"}, lrange(t, client, testQueue))
	require.Empty(t, hgetall(t, client, q.TimeoutsHashName()))
	require.Equal(t, 1, w.count())
}

func TestUniqueQueueDropAllItems(t *testing.T) {
	q, client, _ := newTestUniqueQueue(t)
	ctx := context.Background()
	keys := seedStaleLists(t, client)
	require.NoError(t, q.AddItem(ctx, "pending"))

	n, err := q.DropAllItems(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	for _, key := range keys {
		require.False(t, exists(t, client, key))
	}
	require.Equal(t, []string{"pending"}, lrange(t, client, testQueue))
	require.Equal(t, []string{"pending"}, smembers(t, client, q.SetName()))
}
