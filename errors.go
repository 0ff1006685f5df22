// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"
	"time"

	"github.com/hemant/rqueue/internal/errors"
	"github.com/hemant/rqueue/internal/log"
)

// ErrNotEnoughSyncedReplicas indicates that a write was applied but fewer
// replicas than configured acknowledged it in time.
//
// Use errors.Is to check for this error; errors.As with a
// *NotEnoughSyncedReplicasError gives access to the counts.
var ErrNotEnoughSyncedReplicas = errors.ErrNotEnoughSyncedReplicas

// NotEnoughSyncedReplicasError carries the number of replicas that
// acknowledged a write and the number that was required.
type NotEnoughSyncedReplicasError = errors.NotEnoughSyncedReplicasError

type replicaWaiter interface {
	WaitForSyncedReplicas(ctx context.Context, count int, timeout time.Duration) error
}

// durability gates mutating calls on replica acknowledgement.
type durability struct {
	waiter  replicaWaiter
	logger  *log.Logger
	enabled bool
	count   int
	timeout time.Duration
}

func (d *durability) wait(ctx context.Context) error {
	if !d.enabled {
		return nil
	}
	err := d.waiter.WaitForSyncedReplicas(ctx, d.count, d.timeout)
	if errors.IsNotEnoughSyncedReplicas(err) {
		d.logger.Warnf("Write was not acknowledged by enough replicas: %v", err)
	}
	return err
}
