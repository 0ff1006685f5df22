// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"
	"math"

	"github.com/hemant/rqueue/internal/base"
	"github.com/hemant/rqueue/internal/rdb"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Inspector is a client interface to inspect queues and pools without
// claiming or changing anything.
type Inspector struct {
	rdb   *rdb.RDB
	clock clockwork.Clock

	// When an Inspector has been created with an existing Redis connection, we do
	// not want to close it.
	sharedConnection bool
}

// NewInspector returns a new instance of Inspector.
func NewInspector(r RedisConnOpt) *Inspector {
	i := NewInspectorFromRedisClient(makeRedisClient(r))
	i.sharedConnection = false
	return i
}

// NewInspectorFromRedisClient returns a new instance of Inspector given a redis.UniversalClient
// Warning: The underlying redis connection pool will not be closed by Inspector.
func NewInspectorFromRedisClient(c redis.UniversalClient) *Inspector {
	return &Inspector{
		rdb:              rdb.NewRDB(c),
		clock:            clockwork.NewRealClock(),
		sharedConnection: true,
	}
}

// Close closes the connection with redis.
func (i *Inspector) Close() error {
	if i.sharedConnection {
		return nil
	}
	return i.rdb.Close()
}

// Ping checks the connection with redis.
func (i *Inspector) Ping(ctx context.Context) error {
	return i.rdb.Ping(ctx)
}

// QueueInfo represents the state of a queue at a point in time.
type QueueInfo struct {
	// Name of the queue.
	Name string `json:"name"`

	// Number of pending items.
	Pending int64 `json:"pending"`

	// Number of values in the dedup set. Always zero for a plain Queue.
	Unique int64 `json:"unique"`

	// Number of claimed items across all workers.
	InFlight int `json:"in_flight"`

	// One lease per worker holding items.
	Leases []*WorkerLease `json:"leases"`
}

// QueueInfo returns the current state of the named queue.
// It works for both Queue and UniqueQueue.
func (i *Inspector) QueueInfo(ctx context.Context, name string) (*QueueInfo, error) {
	if err := base.ValidateName(name); err != nil {
		return nil, err
	}
	pending, err := i.rdb.QueueLen(ctx, name)
	if err != nil {
		return nil, err
	}
	unique, err := i.rdb.SetSize(ctx, base.UniqueKey(name))
	if err != nil {
		return nil, err
	}
	leases, err := listLeases(ctx, i.rdb, name)
	if err != nil {
		return nil, err
	}
	info := &QueueInfo{Name: name, Pending: pending, Unique: unique, Leases: leases}
	for _, l := range leases {
		info.InFlight += len(l.Items)
	}
	return info, nil
}

// PendingItems returns the pending items of the named queue in the order
// they will be claimed.
func (i *Inspector) PendingItems(ctx context.Context, name string) ([]string, error) {
	items, err := i.rdb.QueueItems(ctx, name)
	if err != nil {
		return nil, err
	}
	return base.Reversed(items), nil
}

// PoolInfo represents the state of a pool at a point in time.
type PoolInfo struct {
	// Name of the pool.
	Name string `json:"name"`

	// Total number of items.
	Total int64 `json:"total"`

	// Number of items due now, including claims that expired.
	Ready int64 `json:"ready"`

	// Number of items currently claimed, expired or not.
	Claimed int64 `json:"claimed"`
}

// PoolInfo returns the current state of the named pool.
func (i *Inspector) PoolInfo(ctx context.Context, name string) (*PoolInfo, error) {
	if err := base.ValidateName(name); err != nil {
		return nil, err
	}
	ready, err := i.rdb.PoolCountReady(ctx, name, i.clock.Now().Unix())
	if err != nil {
		return nil, err
	}
	zs, err := i.rdb.PoolScores(ctx, name)
	if err != nil {
		return nil, err
	}
	info := &PoolInfo{Name: name, Total: int64(len(zs)), Ready: ready}
	for _, z := range zs {
		if isClaimedScore(z.Score) {
			info.Claimed++
		}
	}
	return info, nil
}

func isClaimedScore(score float64) bool {
	return score-math.Floor(score) > 0.01
}
