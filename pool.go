// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/hemant/rqueue/internal/base"
	"github.com/hemant/rqueue/internal/rdb"
	"github.com/redis/go-redis/v9"
)

// Pool distributes recurring work. Every item has an eligibility time;
// a worker claims items that are due, processes them and acknowledges them,
// which makes them due again after AckValidFor.
//
// An item claimed but not acknowledged within AckTTL becomes claimable by
// other workers without any recovery call.
//
// The pool is stored in a single sorted set. A score with no fractional part
// is the time the item is due. A score ending in .1 marks a claimed item and
// holds the time its claim expires.
//
// A Pool remembers the last claim it made on every item. Acknowledging or
// removing an item claimed through the same Pool only succeeds while that
// exact claim is current, so an ack arriving after another worker reclaimed
// the item is ignored. Items this Pool never claimed, or whose claim expired
// more than AckValidFor ago, are checked for any current claim.
//
// Claims are tracked per Pool, not per goroutine: if two goroutines share a
// Pool and one reclaims an item, the other's late ack is accepted. Use one
// Pool per worker. The claim map holds one entry per item claimed within the
// last AckTTL+AckValidFor, so its size follows the claim rate.
type Pool struct {
	name   string
	broker base.Broker
	opts   options

	mu sync.Mutex
	// claim expiry by item for the last claim made through this Pool.
	claims    map[string]int64
	lastPrune int64

	// When a Pool has been created with an existing Redis connection, we do
	// not want to close it.
	sharedConnection bool
}

// NewPool returns a new Pool given a redis connection option.
func NewPool(name string, r RedisConnOpt, cfg Config) *Pool {
	p := NewPoolFromRedisClient(name, makeRedisClient(r), cfg)
	p.sharedConnection = false
	return p
}

// NewPoolFromRedisClient returns a new Pool given a redis.UniversalClient.
// Warning: The underlying redis connection pool will not be closed by the Pool
// if a redis client is passed.
func NewPoolFromRedisClient(name string, c redis.UniversalClient, cfg Config) *Pool {
	if err := base.ValidateName(name); err != nil {
		panic(fmt.Sprintf("rqueue: invalid pool name: %v", err))
	}
	broker := rdb.NewRDB(c)
	return &Pool{
		name:             name,
		broker:           broker,
		opts:             newOptions(cfg, defaultPoolChunkSize, broker),
		claims:           make(map[string]int64),
		sharedConnection: true,
	}
}

// Close closes the connection with redis if it is owned by the pool.
func (p *Pool) Close() error {
	if p.sharedConnection {
		return nil
	}
	return p.broker.Close()
}

// Name returns the redis key of the pool.
func (p *Pool) Name() string { return p.name }

// Count returns the number of items in the pool, claimed or not.
func (p *Pool) Count(ctx context.Context) (int64, error) {
	return p.broker.PoolCount(ctx, p.name)
}

// CountToProcess returns the number of items that are due now.
// Claimed items whose claim expired are included.
func (p *Pool) CountToProcess(ctx context.Context) (int64, error) {
	return p.broker.PoolCountReady(ctx, p.name, p.opts.now())
}

// IsInPool reports whether item is a member of the pool.
func (p *Pool) IsInPool(ctx context.Context, item string) (bool, error) {
	_, ok, err := p.broker.PoolScore(ctx, p.name, item)
	return ok, err
}

// AddItem adds item to the pool, due now.
// Adding an existing item resets it to due now, releasing any claim.
func (p *Pool) AddItem(ctx context.Context, item string) error {
	if err := p.broker.PoolAdd(ctx, p.name, [][]string{{item}}, p.opts.now()); err != nil {
		return err
	}
	return p.opts.durability.wait(ctx)
}

// AddItems adds all items in a single pipeline of chunked writes.
// The batch is not atomic.
func (p *Pool) AddItems(ctx context.Context, items []string) error {
	if len(items) == 0 {
		return nil
	}
	if err := p.broker.PoolAdd(ctx, p.name, base.Chunks(items, p.opts.chunkSize), p.opts.now()); err != nil {
		return err
	}
	return p.opts.durability.wait(ctx)
}

// GetItems claims up to n due items, the longest overdue first.
// A short or empty result means nothing else is due.
func (p *Pool) GetItems(ctx context.Context, n int) ([]string, error) {
	now := p.opts.now()
	claims, err := p.broker.PoolClaim(ctx, p.name, n, now, p.opts.ackTTL)
	if err != nil {
		return nil, err
	}
	items := make([]string, len(claims))
	p.mu.Lock()
	p.pruneClaims(now)
	for i, c := range claims {
		items[i] = c.Item
		p.claims[c.Item] = c.Expiry
	}
	p.mu.Unlock()
	if len(items) > 0 {
		p.opts.logger.Debugf("Claimed %d item(s) from pool %q", len(items), p.name)
	}
	return items, nil
}

// knownClaims returns the claims this Pool made on items. Items never
// claimed here get a zero expiry.
func (p *Pool) knownClaims(items []string) []base.PoolClaim {
	p.mu.Lock()
	defer p.mu.Unlock()
	claims := make([]base.PoolClaim, len(items))
	for i, item := range items {
		claims[i] = base.PoolClaim{Item: item, Expiry: p.claims[item]}
	}
	return claims
}

// pruneClaims forgets claims that expired more than AckValidFor ago.
// It runs at most once per AckTTL.
func (p *Pool) pruneClaims(now int64) {
	if now-p.lastPrune < p.opts.ackTTL {
		return
	}
	p.lastPrune = now
	for item, expiry := range p.claims {
		if expiry+p.opts.ackValidFor < now {
			delete(p.claims, item)
		}
	}
}

// GetAllItems claims due items chunk by chunk until a chunk comes back short.
func (p *Pool) GetAllItems(ctx context.Context) ([]string, error) {
	var all []string
	for {
		chunk, err := p.GetItems(ctx, p.opts.chunkSize)
		if err != nil {
			return all, err
		}
		all = append(all, chunk...)
		if len(chunk) < p.opts.chunkSize {
			return all, nil
		}
	}
}

// AckItem marks a claimed item as processed; it becomes due again after AckValidFor.
// Acknowledging an item whose claim is no longer current is a no-op.
func (p *Pool) AckItem(ctx context.Context, item string) error {
	return p.ack(ctx, []string{item})
}

// AckItems acknowledges items chunk by chunk, waiting for replicas after every chunk.
func (p *Pool) AckItems(ctx context.Context, items []string) error {
	for _, chunk := range base.Chunks(items, p.opts.chunkSize) {
		if err := p.ack(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) ack(ctx context.Context, items []string) error {
	n, err := p.broker.PoolAck(ctx, p.name, p.knownClaims(items), p.opts.now()+p.opts.ackValidFor)
	if err != nil {
		return err
	}
	if n < len(items) {
		p.opts.logger.Debugf("Ignored ack of %d item(s) not claimed by us in pool %q", len(items)-n, p.name)
	}
	return p.opts.durability.wait(ctx)
}

// RemoveItem deletes a claimed item from the pool.
// Removing an item whose claim is no longer current is a no-op, so a worker
// cannot remove an item another worker has claimed since.
func (p *Pool) RemoveItem(ctx context.Context, item string) error {
	return p.remove(ctx, []string{item})
}

// RemoveItems removes items chunk by chunk, waiting for replicas after every chunk.
func (p *Pool) RemoveItems(ctx context.Context, items []string) error {
	for _, chunk := range base.Chunks(items, p.opts.chunkSize) {
		if err := p.remove(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) remove(ctx context.Context, items []string) error {
	n, err := p.broker.PoolRemove(ctx, p.name, p.knownClaims(items))
	if err != nil {
		return err
	}
	if n < len(items) {
		p.opts.logger.Debugf("Ignored removal of %d item(s) not claimed by us in pool %q", len(items)-n, p.name)
	}
	return p.opts.durability.wait(ctx)
}

// ClearPool deletes every item regardless of its state.
// It works in chunks and may interleave with concurrent writers.
func (p *Pool) ClearPool(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := p.broker.PoolClearChunk(ctx, p.name, p.opts.chunkSize)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}
