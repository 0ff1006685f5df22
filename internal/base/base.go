// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package base defines foundational types and constants used in rqueue package.
package base

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Version of rqueue library.
const Version = "1.0.0"

// Key suffixes. The resulting key names are shared with existing deployments
// and must not change.
const (
	ProcessingSuffix = "-processing"
	TimeoutsSuffix   = "-timeouts"
	UniqueSuffix     = "-unique"
)

// ValidateName validates a given name to be used as a queue or pool name.
// Returns nil if valid, otherwise returns non-nil error.
func ValidateName(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return fmt.Errorf("name must contain one or more characters")
	}
	return nil
}

// ClientID returns the identity of a client process in the form
// <hostname>[<pid>][<unix-seconds>].
func ClientID(hostname string, pid int, t time.Time) string {
	return fmt.Sprintf("%s[%d][%d]", hostname, pid, t.Unix())
}

// NewClientID returns the identity of the current process created at t.
func NewClientID(t time.Time) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return ClientID(host, os.Getpid(), t)
}

// ProcessingKey returns the redis key of the list holding items claimed by the given client.
func ProcessingKey(qname, clientID string) string {
	return qname + ProcessingSuffix + "-" + clientID
}

// ProcessingPrefix returns the common prefix of all processing keys of the queue.
func ProcessingPrefix(qname string) string {
	return qname + ProcessingSuffix + "-"
}

// OwnerFromProcessingKey extracts the client id from a processing key.
// The second return value is false if key does not belong to the queue.
func OwnerFromProcessingKey(qname, key string) (string, bool) {
	prefix := ProcessingPrefix(qname)
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return key[len(prefix):], true
}

// TimeoutsKey returns the redis key of the hash mapping processing keys to their claim time.
func TimeoutsKey(qname string) string {
	return qname + TimeoutsSuffix
}

// UniqueKey returns the redis key of the set used to deduplicate pending items.
func UniqueKey(qname string) string {
	return qname + UniqueSuffix
}

// QueueKeys holds the redis keys a single queue operation touches.
// Unique is empty for queues without deduplication.
type QueueKeys struct {
	Queue      string
	Unique     string
	Processing string
	Timeouts   string
}

// NewQueueKeys returns the keys of the given queue as seen by clientID.
func NewQueueKeys(qname, clientID string, unique bool) QueueKeys {
	k := QueueKeys{
		Queue:      qname,
		Processing: ProcessingKey(qname, clientID),
		Timeouts:   TimeoutsKey(qname),
	}
	if unique {
		k.Unique = UniqueKey(qname)
	}
	return k
}

// WithProcessing returns a copy of k addressing a different processing list.
func (k QueueKeys) WithProcessing(processing string) QueueKeys {
	k.Processing = processing
	return k
}

// Chunks splits items into consecutive slices of at most size elements.
// The returned slices share the backing array of items.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

// Reversed returns a new slice with the elements of items in reverse order.
func Reversed[T any](items []T) []T {
	out := make([]T, len(items))
	for i, v := range items {
		out[len(items)-1-i] = v
	}
	return out
}

// ProcessingEntry is one record of the timeouts hash.
type ProcessingEntry struct {
	Key       string
	ClaimedAt float64
}

// PoolClaim identifies one claim of a pool item. Expiry is the integer part
// of the claim score; zero means the claim is not known to this client.
type PoolClaim struct {
	Item   string
	Expiry int64
}

// Broker is the store-side contract used by the primitives.
//
// See rdb.RDB as a reference implementation.
type Broker interface {
	Ping(ctx context.Context) error
	Close() error
	WaitForSyncedReplicas(ctx context.Context, count int, timeout time.Duration) error

	// Pool related methods
	PoolAdd(ctx context.Context, pname string, chunks [][]string, now int64) error
	PoolClaim(ctx context.Context, pname string, n int, now, ackTTL int64) ([]PoolClaim, error)
	PoolAck(ctx context.Context, pname string, claims []PoolClaim, validUntil int64) (int, error)
	PoolRemove(ctx context.Context, pname string, claims []PoolClaim) (int, error)
	PoolCount(ctx context.Context, pname string) (int64, error)
	PoolCountReady(ctx context.Context, pname string, now int64) (int64, error)
	PoolScore(ctx context.Context, pname, item string) (float64, bool, error)
	PoolClearChunk(ctx context.Context, pname string, size int) (int64, error)

	// Queue related methods
	Enqueue(ctx context.Context, k QueueKeys, chunks [][]string) error
	Claim(ctx context.Context, k QueueKeys, n int, now int64) ([]string, error)
	Ack(ctx context.Context, k QueueKeys, items []string) error
	Reject(ctx context.Context, k QueueKeys, items []string) error
	Requeue(ctx context.Context, k QueueKeys) (int, error)
	DropProcessing(ctx context.Context, k QueueKeys) error
	ListProcessing(ctx context.Context, timeouts string) ([]ProcessingEntry, error)
	QueueLen(ctx context.Context, key string) (int64, error)
	QueueItems(ctx context.Context, key string) ([]string, error)
	SetSize(ctx context.Context, key string) (int64, error)
}
