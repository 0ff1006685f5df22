// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package rdb encapsulates the interactions with redis.
package rdb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hemant/rqueue/internal/base"
	"github.com/hemant/rqueue/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"
)

// RDB is a client interface to query and mutate the primitives' data in redis.
type RDB struct {
	client redis.UniversalClient
}

// NewRDB returns a new instance of RDB.
func NewRDB(client redis.UniversalClient) *RDB {
	return &RDB{client: client}
}

var _ base.Broker = (*RDB)(nil)

// Close closes the connection with redis server.
func (r *RDB) Close() error {
	return r.client.Close()
}

// Client returns the reference to underlying redis client.
func (r *RDB) Client() redis.UniversalClient {
	return r.client
}

// Ping checks the connection with redis server.
func (r *RDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RDB) runScript(ctx context.Context, op errors.Op, script *redis.Script, keys []string, args ...interface{}) (*redis.Cmd, error) {
	cmd := script.Run(ctx, r.client, keys, args...)
	if err := cmd.Err(); err != nil {
		return nil, errors.E(op, errors.Unknown, &errors.RedisCommandError{Command: "evalsha", Err: err})
	}
	return cmd, nil
}

// runScriptPipelined evaluates script once per args entry in a single round trip.
// EVAL is used instead of EVALSHA since a NOSCRIPT reply is only known after Exec.
func (r *RDB) runScriptPipelined(ctx context.Context, op errors.Op, script *redis.Script, keys []string, args [][]interface{}) ([]*redis.Cmd, error) {
	if len(args) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.Cmd, 0, len(args))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, a := range args {
			cmds = append(cmds, script.Eval(ctx, pipe, keys, a...))
		}
		return nil
	})
	if err != nil {
		return nil, errors.E(op, errors.Unknown, &errors.RedisCommandError{Command: "eval", Err: err})
	}
	return cmds, nil
}

func sumInts(cmds []*redis.Cmd) int {
	n := 0
	for _, cmd := range cmds {
		v, err := cmd.Int()
		if err == nil {
			n += v
		}
	}
	return n
}

func itemArgs(items []string) [][]interface{} {
	args := make([][]interface{}, len(items))
	for i, item := range items {
		args[i] = []interface{}{item}
	}
	return args
}

// WaitForSyncedReplicas blocks until count replicas acknowledged all writes issued
// on this connection or timeout elapses. It returns NotEnoughSyncedReplicasError
// if fewer replicas acknowledged.
func (r *RDB) WaitForSyncedReplicas(ctx context.Context, count int, timeout time.Duration) error {
	var op errors.Op = "rdb.WaitForSyncedReplicas"
	// WAIT is not part of redis.UniversalClient.
	synced, err := r.client.Do(ctx, "wait", count, timeout.Milliseconds()).Int64()
	if err != nil {
		return errors.E(op, errors.Unknown, &errors.RedisCommandError{Command: "wait", Err: err})
	}
	if int(synced) < count {
		return errors.E(op, errors.Unavailable, &errors.NotEnoughSyncedReplicasError{Synced: int(synced), Required: count})
	}
	return nil
}

/*****************************************
    Pool
*****************************************/

// PoolAdd upserts every item with score now. All chunks are sent in one pipeline.
func (r *RDB) PoolAdd(ctx context.Context, pname string, chunks [][]string, now int64) error {
	var op errors.Op = "rdb.PoolAdd"
	if len(chunks) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, chunk := range chunks {
			members := make([]redis.Z, len(chunk))
			for i, item := range chunk {
				members[i] = redis.Z{Score: float64(now), Member: item}
			}
			pipe.ZAdd(ctx, pname, members...)
		}
		return nil
	})
	if err != nil {
		return errors.E(op, errors.Unknown, &errors.RedisCommandError{Command: "zadd", Err: err})
	}
	return nil
}

// PoolClaim claims up to n items eligible at now, oldest first.
func (r *RDB) PoolClaim(ctx context.Context, pname string, n int, now, ackTTL int64) ([]base.PoolClaim, error) {
	var op errors.Op = "rdb.PoolClaim"
	if n <= 0 {
		return nil, nil
	}
	cmd, err := r.runScript(ctx, op, poolClaimCmd, []string{pname}, n, now, ackTTL)
	if err != nil {
		return nil, err
	}
	vals, err := cmd.Slice()
	if err != nil || len(vals)%2 != 0 {
		return nil, errors.E(op, errors.Internal, fmt.Sprintf("unexpected return value from Lua script: %v", cmd.Val()))
	}
	claims := make([]base.PoolClaim, 0, len(vals)/2)
	for i := 0; i < len(vals); i += 2 {
		item, err := cast.ToStringE(vals[i])
		if err != nil {
			return nil, errors.E(op, errors.Internal, err)
		}
		expiry, err := cast.ToInt64E(vals[i+1])
		if err != nil {
			return nil, errors.E(op, errors.Internal, err)
		}
		claims = append(claims, base.PoolClaim{Item: item, Expiry: expiry})
	}
	return claims, nil
}

func claimArgs(claims []base.PoolClaim, extra ...interface{}) [][]interface{} {
	args := make([][]interface{}, len(claims))
	for i, c := range claims {
		expiry := ""
		if c.Expiry > 0 {
			expiry = cast.ToString(c.Expiry)
		}
		a := append([]interface{}{c.Item}, extra...)
		args[i] = append(a, expiry)
	}
	return args
}

// PoolAck acknowledges claimed items and returns how many were actually claimed.
func (r *RDB) PoolAck(ctx context.Context, pname string, claims []base.PoolClaim, validUntil int64) (int, error) {
	var op errors.Op = "rdb.PoolAck"
	args := claimArgs(claims, validUntil)
	if len(args) == 1 {
		cmd, err := r.runScript(ctx, op, poolAckCmd, []string{pname}, args[0]...)
		if err != nil {
			return 0, err
		}
		return sumInts([]*redis.Cmd{cmd}), nil
	}
	cmds, err := r.runScriptPipelined(ctx, op, poolAckCmd, []string{pname}, args)
	if err != nil {
		return 0, err
	}
	return sumInts(cmds), nil
}

// PoolRemove deletes claimed items and returns how many were removed.
func (r *RDB) PoolRemove(ctx context.Context, pname string, claims []base.PoolClaim) (int, error) {
	var op errors.Op = "rdb.PoolRemove"
	args := claimArgs(claims)
	if len(args) == 1 {
		cmd, err := r.runScript(ctx, op, poolRemoveCmd, []string{pname}, args[0]...)
		if err != nil {
			return 0, err
		}
		return sumInts([]*redis.Cmd{cmd}), nil
	}
	cmds, err := r.runScriptPipelined(ctx, op, poolRemoveCmd, []string{pname}, args)
	if err != nil {
		return 0, err
	}
	return sumInts(cmds), nil
}

// PoolCount returns the number of items in the pool.
func (r *RDB) PoolCount(ctx context.Context, pname string) (int64, error) {
	n, err := r.client.ZCard(ctx, pname).Result()
	if err != nil {
		return 0, errors.E(errors.Op("rdb.PoolCount"), errors.Unknown, &errors.RedisCommandError{Command: "zcard", Err: err})
	}
	return n, nil
}

// PoolCountReady returns the number of items eligible at now.
func (r *RDB) PoolCountReady(ctx context.Context, pname string, now int64) (int64, error) {
	n, err := r.client.ZCount(ctx, pname, "-inf", cast.ToString(now)).Result()
	if err != nil {
		return 0, errors.E(errors.Op("rdb.PoolCountReady"), errors.Unknown, &errors.RedisCommandError{Command: "zcount", Err: err})
	}
	return n, nil
}

// PoolScore returns the score of item. The second return value is false if the
// item is not in the pool.
func (r *RDB) PoolScore(ctx context.Context, pname, item string) (float64, bool, error) {
	score, err := r.client.ZScore(ctx, pname, item).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.E(errors.Op("rdb.PoolScore"), errors.Unknown, &errors.RedisCommandError{Command: "zscore", Err: err})
	}
	return score, true, nil
}

// PoolScores returns every member with its score, lowest score first.
func (r *RDB) PoolScores(ctx context.Context, pname string) ([]redis.Z, error) {
	zs, err := r.client.ZRangeWithScores(ctx, pname, 0, -1).Result()
	if err != nil {
		return nil, errors.E(errors.Op("rdb.PoolScores"), errors.Unknown, &errors.RedisCommandError{Command: "zrange", Err: err})
	}
	return zs, nil
}

// PoolClearChunk removes the lowest ranked items, ranks 0 through size inclusive.
func (r *RDB) PoolClearChunk(ctx context.Context, pname string, size int) (int64, error) {
	n, err := r.client.ZRemRangeByRank(ctx, pname, 0, int64(size)).Result()
	if err != nil {
		return 0, errors.E(errors.Op("rdb.PoolClearChunk"), errors.Unknown, &errors.RedisCommandError{Command: "zremrangebyrank", Err: err})
	}
	return n, nil
}

/*****************************************
    Queue
*****************************************/

// Enqueue pushes every item onto the producer end of the queue.
//
// Without a unique set all chunks go out in a single pipeline.
// With a unique set every item is run through the dedup script and
// the pipeline is executed once per chunk.
func (r *RDB) Enqueue(ctx context.Context, k base.QueueKeys, chunks [][]string) error {
	var op errors.Op = "rdb.Enqueue"
	if len(chunks) == 0 {
		return nil
	}
	if k.Unique != "" {
		for _, chunk := range chunks {
			if _, err := r.runScriptPipelined(ctx, op, uniqueEnqueueCmd, []string{k.Queue, k.Unique}, itemArgs(chunk)); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, chunk := range chunks {
			pipe.LPush(ctx, k.Queue, toInterfaces(chunk)...)
		}
		return nil
	})
	if err != nil {
		return errors.E(op, errors.Unknown, &errors.RedisCommandError{Command: "lpush", Err: err})
	}
	return nil
}

// Claim moves up to n items from the queue onto k.Processing and records now
// as the claim time of that processing list.
func (r *RDB) Claim(ctx context.Context, k base.QueueKeys, n int, now int64) ([]string, error) {
	var op errors.Op = "rdb.Claim"
	var (
		cmd *redis.Cmd
		err error
	)
	if k.Unique != "" {
		cmd, err = r.runScript(ctx, op, uniqueClaimCmd, []string{k.Queue, k.Unique, k.Processing, k.Timeouts}, n, now)
	} else {
		cmd, err = r.runScript(ctx, op, claimCmd, []string{k.Queue, k.Processing, k.Timeouts}, n, now)
	}
	if err != nil {
		return nil, err
	}
	items, err := cmd.StringSlice()
	if err != nil {
		return nil, errors.E(op, errors.Internal, fmt.Sprintf("unexpected return value from Lua script: %v", cmd.Val()))
	}
	return items, nil
}

// Ack removes one occurrence of each item from the processing list.
func (r *RDB) Ack(ctx context.Context, k base.QueueKeys, items []string) error {
	var op errors.Op = "rdb.Ack"
	keys := []string{k.Processing, k.Timeouts}
	if len(items) == 1 {
		_, err := r.runScript(ctx, op, ackCmd, keys, items[0])
		return err
	}
	_, err := r.runScriptPipelined(ctx, op, ackCmd, keys, itemArgs(items))
	return err
}

// Reject moves each item from the processing list back onto the consumer end
// of the queue, in the given order.
func (r *RDB) Reject(ctx context.Context, k base.QueueKeys, items []string) error {
	var op errors.Op = "rdb.Reject"
	script, keys := rejectCmd, []string{k.Queue, k.Processing, k.Timeouts}
	if k.Unique != "" {
		script, keys = uniqueRejectCmd, []string{k.Queue, k.Unique, k.Processing, k.Timeouts}
	}
	if len(items) == 1 {
		_, err := r.runScript(ctx, op, script, keys, items[0])
		return err
	}
	_, err := r.runScriptPipelined(ctx, op, script, keys, itemArgs(items))
	return err
}

// Requeue drains k.Processing back onto the queue and forgets its claim time.
// It returns the number of drained items.
func (r *RDB) Requeue(ctx context.Context, k base.QueueKeys) (int, error) {
	var op errors.Op = "rdb.Requeue"
	var (
		cmd *redis.Cmd
		err error
	)
	if k.Unique != "" {
		cmd, err = r.runScript(ctx, op, uniqueRequeueCmd, []string{k.Queue, k.Unique, k.Processing, k.Timeouts})
	} else {
		cmd, err = r.runScript(ctx, op, requeueCmd, []string{k.Queue, k.Processing, k.Timeouts})
	}
	if err != nil {
		return 0, err
	}
	return sumInts([]*redis.Cmd{cmd}), nil
}

// DropProcessing deletes k.Processing together with its timeouts entry.
func (r *RDB) DropProcessing(ctx context.Context, k base.QueueKeys) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k.Processing)
		pipe.HDel(ctx, k.Timeouts, k.Processing)
		return nil
	})
	if err != nil {
		return errors.E(errors.Op("rdb.DropProcessing"), errors.Unknown, &errors.RedisCommandError{Command: "del", Err: err})
	}
	return nil
}

// ListProcessing returns all entries of the timeouts hash sorted by
// processing key in descending order.
func (r *RDB) ListProcessing(ctx context.Context, timeouts string) ([]base.ProcessingEntry, error) {
	var op errors.Op = "rdb.ListProcessing"
	var entries []base.ProcessingEntry
	var cursor uint64
	seen := make(map[string]struct{})
	for {
		kvs, next, err := r.client.HScan(ctx, timeouts, cursor, "", 100).Result()
		if err != nil {
			return nil, errors.E(op, errors.Unknown, &errors.RedisCommandError{Command: "hscan", Err: err})
		}
		for i := 0; i+1 < len(kvs); i += 2 {
			if _, ok := seen[kvs[i]]; ok {
				continue
			}
			seen[kvs[i]] = struct{}{}
			claimedAt, err := cast.ToFloat64E(kvs[i+1])
			if err != nil {
				return nil, errors.E(op, errors.Internal, err)
			}
			entries = append(entries, base.ProcessingEntry{Key: kvs[i], ClaimedAt: claimedAt})
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key > entries[j].Key
	})
	return entries, nil
}

// QueueLen returns the length of the list stored at key.
func (r *RDB) QueueLen(ctx context.Context, key string) (int64, error) {
	n, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, errors.E(errors.Op("rdb.QueueLen"), errors.Unknown, &errors.RedisCommandError{Command: "llen", Err: err})
	}
	return n, nil
}

// QueueItems returns the whole list stored at key, head first.
func (r *RDB) QueueItems(ctx context.Context, key string) ([]string, error) {
	items, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errors.E(errors.Op("rdb.QueueItems"), errors.Unknown, &errors.RedisCommandError{Command: "lrange", Err: err})
	}
	return items, nil
}

// SetSize returns the cardinality of the set stored at key.
func (r *RDB) SetSize(ctx context.Context, key string) (int64, error) {
	n, err := r.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, errors.E(errors.Op("rdb.SetSize"), errors.Unknown, &errors.RedisCommandError{Command: "scard", Err: err})
	}
	return n, nil
}

func toInterfaces(items []string) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
