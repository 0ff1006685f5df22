// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rdb

import "github.com/redis/go-redis/v9"

// Every script below runs atomically on the server. Scripts always return a
// value so that go-redis does not surface an empty reply as redis.Nil.

// KEYS[1] -> pool
// ARGV[1] -> max number of items to claim
// ARGV[2] -> current unix time
// ARGV[3] -> ack TTL in seconds
//
// Claimed items get a score with a fractional part of .1 which marks them
// as checked out until the TTL elapses. The TTL counts from the later of the
// item's due time and now, so an overdue item stays claimed for a full TTL.
//
// Returns a flat list of item, claim expiry pairs. The expiry is the integer
// part of the new score and identifies this particular claim.
var poolClaimCmd = redis.NewScript(`
local items = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[2], "WITHSCORES", "LIMIT", 0, tonumber(ARGV[1]))
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local claimed = {}
for i = 1, #items, 2 do
	local expiry = math.max(math.floor(tonumber(items[i + 1])), now) + ttl
	redis.call("ZADD", KEYS[1], expiry + 0.1, items[i])
	table.insert(claimed, items[i])
	table.insert(claimed, expiry)
end
return claimed
`)

// KEYS[1] -> pool
// ARGV[1] -> item
// ARGV[2] -> unix time at which the item becomes eligible again
// ARGV[3] -> claim expiry returned on claim, or empty to accept any claim
//
// Returns 1 if the item was claimed and got acknowledged, 0 otherwise.
var poolAckCmd = redis.NewScript(`
local score = redis.call("ZSCORE", KEYS[1], ARGV[1])
if score then
	score = tonumber(score)
	local expiry = math.floor(score)
	if score - expiry > 0.01 and (ARGV[3] == "" or expiry == tonumber(ARGV[3])) then
		redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
		return 1
	end
end
return 0
`)

// KEYS[1] -> pool
// ARGV[1] -> item
// ARGV[2] -> claim expiry returned on claim, or empty to accept any claim
//
// Returns 1 if the item was claimed and got removed, 0 otherwise.
var poolRemoveCmd = redis.NewScript(`
local score = redis.call("ZSCORE", KEYS[1], ARGV[1])
if score then
	score = tonumber(score)
	local expiry = math.floor(score)
	if score - expiry > 0.01 and (ARGV[2] == "" or expiry == tonumber(ARGV[2])) then
		redis.call("ZREM", KEYS[1], ARGV[1])
		return 1
	end
end
return 0
`)

// KEYS[1] -> queue
// KEYS[2] -> processing list of the caller
// KEYS[3] -> timeouts hash
// ARGV[1] -> max number of items to claim
// ARGV[2] -> current unix time
//
// The claim time is refreshed whenever the processing list is non-empty
// after the call, so the timeouts hash never points at an empty list.
var claimCmd = redis.NewScript(`
local items = {}
for i = 1, tonumber(ARGV[1]) do
	local item = redis.call("RPOPLPUSH", KEYS[1], KEYS[2])
	if not item then
		break
	end
	table.insert(items, item)
end
if redis.call("LLEN", KEYS[2]) > 0 then
	redis.call("HSET", KEYS[3], KEYS[2], ARGV[2])
end
return items
`)

// KEYS[1] -> processing list
// KEYS[2] -> timeouts hash
// ARGV[1] -> item
//
// Returns the number of removed occurrences (0 or 1).
var ackCmd = redis.NewScript(`
local removed = redis.call("LREM", KEYS[1], -1, ARGV[1])
if redis.call("LLEN", KEYS[1]) == 0 then
	redis.call("HDEL", KEYS[2], KEYS[1])
end
return removed
`)

// KEYS[1] -> queue
// KEYS[2] -> processing list
// KEYS[3] -> timeouts hash
// ARGV[1] -> item
var rejectCmd = redis.NewScript(`
local removed = redis.call("LREM", KEYS[2], -1, ARGV[1])
if removed == 1 then
	redis.call("RPUSH", KEYS[1], ARGV[1])
end
if redis.call("LLEN", KEYS[2]) == 0 then
	redis.call("HDEL", KEYS[3], KEYS[2])
end
return removed
`)

// KEYS[1] -> queue
// KEYS[2] -> processing list
// KEYS[3] -> timeouts hash
//
// Returns the number of items moved back to the queue.
var requeueCmd = redis.NewScript(`
local n = 0
while true do
	local item = redis.call("LPOP", KEYS[2])
	if not item then
		break
	end
	redis.call("RPUSH", KEYS[1], item)
	n = n + 1
end
redis.call("HDEL", KEYS[3], KEYS[2])
return n
`)

// KEYS[1] -> queue
// KEYS[2] -> unique set
// ARGV[1] -> item
//
// Returns 1 if the item was enqueued, 0 if it was already pending.
var uniqueEnqueueCmd = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 0 then
	redis.call("LPUSH", KEYS[1], ARGV[1])
	redis.call("SADD", KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// KEYS[1] -> queue
// KEYS[2] -> unique set
// KEYS[3] -> processing list of the caller
// KEYS[4] -> timeouts hash
// ARGV[1] -> max number of items to claim
// ARGV[2] -> current unix time
//
// Claimed items leave the unique set so a producer may enqueue the same
// value again while the first copy is being processed.
var uniqueClaimCmd = redis.NewScript(`
local items = {}
for i = 1, tonumber(ARGV[1]) do
	local item = redis.call("RPOPLPUSH", KEYS[1], KEYS[3])
	if not item then
		break
	end
	redis.call("SREM", KEYS[2], item)
	table.insert(items, item)
end
if redis.call("LLEN", KEYS[3]) > 0 then
	redis.call("HSET", KEYS[4], KEYS[3], ARGV[2])
end
return items
`)

// KEYS[1] -> queue
// KEYS[2] -> unique set
// KEYS[3] -> processing list
// KEYS[4] -> timeouts hash
// ARGV[1] -> item
var uniqueRejectCmd = redis.NewScript(`
local removed = redis.call("LREM", KEYS[3], -1, ARGV[1])
if removed == 1 then
	if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 0 then
		redis.call("RPUSH", KEYS[1], ARGV[1])
		redis.call("SADD", KEYS[2], ARGV[1])
	end
end
if redis.call("LLEN", KEYS[3]) == 0 then
	redis.call("HDEL", KEYS[4], KEYS[3])
end
return removed
`)

// KEYS[1] -> queue
// KEYS[2] -> unique set
// KEYS[3] -> processing list
// KEYS[4] -> timeouts hash
//
// When a producer re-added a value while it was in flight, the pending copy
// is removed before the recovered one is pushed, leaving a single copy.
var uniqueRequeueCmd = redis.NewScript(`
local n = 0
while true do
	local item = redis.call("LPOP", KEYS[3])
	if not item then
		break
	end
	if redis.call("SISMEMBER", KEYS[2], item) == 0 then
		redis.call("RPUSH", KEYS[1], item)
		redis.call("SADD", KEYS[2], item)
	else
		redis.call("LREM", KEYS[1], -1, item)
		redis.call("RPUSH", KEYS[1], item)
	end
	n = n + 1
end
redis.call("HDEL", KEYS[4], KEYS[3])
return n
`)
