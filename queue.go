// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hemant/rqueue/internal/base"
	"github.com/hemant/rqueue/internal/rdb"
	"github.com/redis/go-redis/v9"
)

// Queue is a FIFO queue with at-least-once delivery.
//
// Items claimed by GetItems move to a processing list owned by this client.
// They leave it on AckItem, or go back to the queue on RejectItem. Items
// claimed by a client that went away stay in its processing list until
// somebody calls ReEnqueueTimeoutItems or DropTimeoutItems.
type Queue struct {
	queue
}

// NewQueue returns a new Queue given a redis connection option.
func NewQueue(name string, r RedisConnOpt, cfg Config) *Queue {
	q := NewQueueFromRedisClient(name, makeRedisClient(r), cfg)
	q.sharedConnection = false
	return q
}

// NewQueueFromRedisClient returns a new Queue given a redis.UniversalClient.
// Warning: The underlying redis connection pool will not be closed by the Queue
// if a redis client is passed.
func NewQueueFromRedisClient(name string, c redis.UniversalClient, cfg Config) *Queue {
	return &Queue{newQueue(name, c, cfg, false)}
}

// queue implements the operations shared by Queue and UniqueQueue.
type queue struct {
	name     string
	clientID string
	keys     base.QueueKeys
	broker   base.Broker
	opts     options

	sharedConnection bool
}

func newQueue(name string, c redis.UniversalClient, cfg Config, unique bool) queue {
	if err := base.ValidateName(name); err != nil {
		panic(fmt.Sprintf("rqueue: invalid queue name: %v", err))
	}
	broker := rdb.NewRDB(c)
	opts := newOptions(cfg, defaultQueueChunkSize, broker)
	clientID := base.NewClientID(opts.clock.Now())
	return queue{
		name:             name,
		clientID:         clientID,
		keys:             base.NewQueueKeys(name, clientID, unique),
		broker:           broker,
		opts:             opts,
		sharedConnection: true,
	}
}

// Close closes the connection with redis if it is owned by the queue.
func (q *queue) Close() error {
	if q.sharedConnection {
		return nil
	}
	return q.broker.Close()
}

// Name returns the redis key of the pending list.
func (q *queue) Name() string { return q.name }

// ClientID returns the identity of this client, <hostname>[<pid>][<unix-seconds>].
func (q *queue) ClientID() string { return q.clientID }

// ProcessingQueueName returns the redis key of the list holding the items
// claimed by this client.
func (q *queue) ProcessingQueueName() string { return q.keys.Processing }

// TimeoutsHashName returns the redis key of the hash recording when each
// processing list last claimed items.
func (q *queue) TimeoutsHashName() string { return q.keys.Timeouts }

// Count returns the number of pending items.
func (q *queue) Count(ctx context.Context) (int64, error) {
	return q.broker.QueueLen(ctx, q.keys.Queue)
}

// AddItems enqueues items in a single pipeline of chunked writes.
// The batch is not atomic.
func (q *queue) AddItems(ctx context.Context, items []string) error {
	if len(items) == 0 {
		return nil
	}
	if err := q.broker.Enqueue(ctx, q.keys, base.Chunks(items, q.opts.chunkSize)); err != nil {
		return err
	}
	return q.opts.durability.wait(ctx)
}

// AddItem enqueues a single item.
func (q *queue) AddItem(ctx context.Context, item string) error {
	if err := q.broker.Enqueue(ctx, q.keys, [][]string{{item}}); err != nil {
		return err
	}
	return q.opts.durability.wait(ctx)
}

// GetItems claims up to n items in the order they were added.
// A short or empty result means the queue ran dry.
func (q *queue) GetItems(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := q.broker.Claim(ctx, q.keys, n, q.opts.now())
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		q.opts.logger.Debugf("Claimed %d item(s) from queue %q", len(items), q.name)
	}
	return items, nil
}

// AckItem removes a claimed item for good.
// Acknowledging an item this client does not hold is a no-op.
func (q *queue) AckItem(ctx context.Context, item string) error {
	return q.AckItems(ctx, []string{item})
}

// AckItems acknowledges all items in a single pipeline.
func (q *queue) AckItems(ctx context.Context, items []string) error {
	if len(items) == 0 {
		return nil
	}
	if err := q.broker.Ack(ctx, q.keys, items); err != nil {
		return err
	}
	return q.opts.durability.wait(ctx)
}

// RejectItem puts a claimed item back at the consumer end of the queue,
// ahead of every item already pending, so it is the next one claimed.
// Rejecting an item this client does not hold is a no-op.
func (q *queue) RejectItem(ctx context.Context, item string) error {
	return q.RejectItems(ctx, []string{item})
}

// RejectItems rejects all items in a single pipeline. The items are sent
// in reverse so that the next claim returns them in the order given.
func (q *queue) RejectItems(ctx context.Context, items []string) error {
	if len(items) == 0 {
		return nil
	}
	if err := q.broker.Reject(ctx, q.keys, base.Reversed(items)); err != nil {
		return err
	}
	return q.opts.durability.wait(ctx)
}

// WorkerLease describes the items one client currently holds.
type WorkerLease struct {
	// Owner is the client id of the worker.
	Owner string `json:"owner"`

	// ProcessingKey is the redis key of the worker's processing list.
	ProcessingKey string `json:"processing_key"`

	// ClaimedAt is the last time the worker claimed items.
	ClaimedAt time.Time `json:"claimed_at"`

	// Items held by the worker, the most recently claimed first.
	Items []string `json:"items"`
}

// Leases returns the leases recorded in the timeouts hash, sorted by
// processing key in descending order.
func (q *queue) Leases(ctx context.Context) ([]*WorkerLease, error) {
	return listLeases(ctx, q.broker, q.name)
}

func listLeases(ctx context.Context, broker base.Broker, qname string) ([]*WorkerLease, error) {
	entries, err := broker.ListProcessing(ctx, base.TimeoutsKey(qname))
	if err != nil {
		return nil, err
	}
	leases := make([]*WorkerLease, 0, len(entries))
	for _, e := range entries {
		items, err := broker.QueueItems(ctx, e.Key)
		if err != nil {
			return nil, err
		}
		owner, _ := base.OwnerFromProcessingKey(qname, e.Key)
		leases = append(leases, &WorkerLease{
			Owner:         owner,
			ProcessingKey: e.Key,
			ClaimedAt:     unixFloatToTime(e.ClaimedAt),
			Items:         items,
		})
	}
	return leases, nil
}

// ReEnqueueTimeoutItems moves the items of every processing list that has not
// claimed anything for longer than timeout back to the queue. It returns the
// number of processing lists recovered.
//
// A list claimed at t is recovered when t + timeout is strictly before now,
// with both sides truncated to whole seconds.
func (q *queue) ReEnqueueTimeoutItems(ctx context.Context, timeout time.Duration) (int, error) {
	return q.reap(ctx, q.olderThan(timeout), q.requeue)
}

// ReEnqueueAllItems moves the items of every processing list back to the queue,
// including the lists of live workers.
func (q *queue) ReEnqueueAllItems(ctx context.Context) (int, error) {
	return q.reap(ctx, nil, q.requeue)
}

// DropTimeoutItems deletes every processing list that has not claimed anything
// for longer than timeout, discarding its items.
func (q *queue) DropTimeoutItems(ctx context.Context, timeout time.Duration) (int, error) {
	return q.reap(ctx, q.olderThan(timeout), q.drop)
}

// DropAllItems deletes every processing list, discarding its items.
func (q *queue) DropAllItems(ctx context.Context) (int, error) {
	return q.reap(ctx, nil, q.drop)
}

func (q *queue) olderThan(timeout time.Duration) func(base.ProcessingEntry) bool {
	now := q.opts.now()
	secs := int64(timeout / time.Second)
	return func(e base.ProcessingEntry) bool {
		return int64(e.ClaimedAt)+secs < now
	}
}

func (q *queue) requeue(ctx context.Context, k base.QueueKeys) error {
	n, err := q.broker.Requeue(ctx, k)
	if err != nil {
		return err
	}
	q.opts.logger.Debugf("Re-enqueued %d item(s) from %q", n, k.Processing)
	return nil
}

func (q *queue) drop(ctx context.Context, k base.QueueKeys) error {
	if err := q.broker.DropProcessing(ctx, k); err != nil {
		return err
	}
	q.opts.logger.Debugf("Dropped processing list %q", k.Processing)
	return nil
}

// reap applies fn to every processing list selected by stale, or to all of
// them if stale is nil. A failure on one list does not stop the others;
// all failures are returned together.
func (q *queue) reap(ctx context.Context, stale func(base.ProcessingEntry) bool, fn func(context.Context, base.QueueKeys) error) (int, error) {
	entries, err := q.broker.ListProcessing(ctx, q.keys.Timeouts)
	if err != nil {
		return 0, err
	}
	var (
		n      int
		result *multierror.Error
	)
	for _, e := range entries {
		if stale != nil && !stale(e) {
			continue
		}
		if err := fn(ctx, q.keys.WithProcessing(e.Key)); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		n++
	}
	if err := q.opts.durability.wait(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return n, result.ErrorOrNil()
}

func unixFloatToTime(v float64) time.Time {
	sec := int64(v)
	return time.Unix(sec, int64((v-float64(sec))*float64(time.Second)))
}
