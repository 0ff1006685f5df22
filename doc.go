// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

/*
Package rqueue provides work-distribution primitives backed by Redis.

Three primitives are available. All of them give any number of worker
processes at-least-once access to shared items without a coordinator:
every state change is a single Lua script.

  - Queue: FIFO queue. Claimed items move to a per-client processing list.
  - UniqueQueue: Queue that keeps at most one pending copy of a value.
  - Pool: recurring work. Items are claimed when due and become due again
    some time after being acknowledged.

# Queue

	q := rqueue.NewQueue("jobs", rqueue.RedisClientOpt{Addr: "localhost:6379"}, rqueue.Config{})
	defer q.Close()

	if err := q.AddItems(ctx, []string{"a", "b", "c"}); err != nil {
		log.Fatal(err)
	}
	items, err := q.GetItems(ctx, 2) // ["a", "b"]
	if err != nil {
		log.Fatal(err)
	}
	// process items...
	q.AckItems(ctx, items[:1])
	q.RejectItems(ctx, items[1:])

Items claimed by a worker that died stay in its processing list. Any client
recovers them by calling ReEnqueueTimeoutItems (or DropTimeoutItems to throw
them away), either directly or through a Reaper:

	r := rqueue.NewReaper(rqueue.RedisClientOpt{Addr: "localhost:6379"}, rqueue.ReaperConfig{
		Queues:   []string{"jobs"},
		Interval: time.Minute,
		Timeout:  2 * time.Hour,
	})
	if err := r.Run(); err != nil {
		log.Fatal(err)
	}

# Pool

	p := rqueue.NewPool("feeds", rqueue.RedisClientOpt{Addr: "localhost:6379"}, rqueue.Config{
		AckTTL:      10 * time.Minute,
		AckValidFor: 36 * time.Hour,
	})
	p.AddItems(ctx, feedURLs)

	items, _ := p.GetItems(ctx, 50)
	for _, item := range items {
		// refresh the feed...
		p.AckItem(ctx, item)
	}

A pool item that is claimed but never acknowledged becomes claimable again
once AckTTL elapses. An acknowledgement that arrives after another worker
claimed the item again is ignored.

# Durability

With Config.SyncedReplicas enabled, every mutating call waits for the given
number of replicas. A shortfall returns an error matching
ErrNotEnoughSyncedReplicas; the write is not rolled back.

# Redis Cluster

All keys of a queue are derived from its name. On a cluster, use a name with
a hash tag such as "{jobs}" so the scripts touch a single slot.
*/
package rqueue
