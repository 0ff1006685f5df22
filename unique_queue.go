// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// UniqueQueue is a Queue that holds at most one pending copy of a value.
//
// The set stored under SetName mirrors the pending items. Adding a value
// already in the set is a no-op. Claimed items leave the set, so the same
// value may be added again while the first copy is being processed;
// rejecting or recovering the first copy then keeps a single pending copy.
type UniqueQueue struct {
	queue
}

// NewUniqueQueue returns a new UniqueQueue given a redis connection option.
func NewUniqueQueue(name string, r RedisConnOpt, cfg Config) *UniqueQueue {
	q := NewUniqueQueueFromRedisClient(name, makeRedisClient(r), cfg)
	q.sharedConnection = false
	return q
}

// NewUniqueQueueFromRedisClient returns a new UniqueQueue given a redis.UniversalClient.
// Warning: The underlying redis connection pool will not be closed by the UniqueQueue
// if a redis client is passed.
func NewUniqueQueueFromRedisClient(name string, c redis.UniversalClient, cfg Config) *UniqueQueue {
	return &UniqueQueue{newQueue(name, c, cfg, true)}
}

// SetName returns the redis key of the set deduplicating pending items.
func (q *UniqueQueue) SetName() string { return q.keys.Unique }

// SetSize returns the number of values in the dedup set.
func (q *UniqueQueue) SetSize(ctx context.Context) (int64, error) {
	return q.broker.SetSize(ctx, q.keys.Unique)
}
