// Copyright 2022 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"
	"sync"
	"time"

	"github.com/hemant/rqueue/internal/log"
	"github.com/jonboulle/clockwork"
)

// janitor is responsible for periodically recovering stale processing lists.
type janitor struct {
	logger *log.Logger
	clock  clockwork.Clock

	// channel to communicate back to the long running "janitor" goroutine.
	done     chan struct{}
	doneOnce sync.Once

	// queues to watch.
	queues []*queue

	// interval between reaping runs.
	interval time.Duration

	// claim age after which a processing list is stale.
	timeout time.Duration

	// discard stale items instead of re-enqueueing them.
	drop bool
}

type janitorParams struct {
	logger   *log.Logger
	clock    clockwork.Clock
	queues   []*queue
	interval time.Duration
	timeout  time.Duration
	drop     bool
}

func newJanitor(params janitorParams) *janitor {
	return &janitor{
		logger:   params.logger,
		clock:    params.clock,
		done:     make(chan struct{}),
		queues:   params.queues,
		interval: params.interval,
		timeout:  params.timeout,
		drop:     params.drop,
	}
}

// shutdown may be called more than once.
func (j *janitor) shutdown() {
	j.doneOnce.Do(func() {
		j.logger.Debug("Janitor shutting down...")
		// Signal the janitor goroutine to stop.
		close(j.done)
	})
}

func (j *janitor) start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		timer := j.clock.NewTimer(j.interval)
		for {
			select {
			case <-j.done:
				j.logger.Debug("Janitor done")
				timer.Stop()
				return
			case <-timer.Chan():
				j.exec()
				timer.Reset(j.interval)
			}
		}
	}()
}

func (j *janitor) exec() {
	ctx := context.Background()
	for _, q := range j.queues {
		var (
			n   int
			err error
		)
		if j.drop {
			n, err = q.DropTimeoutItems(ctx, j.timeout)
		} else {
			n, err = q.ReEnqueueTimeoutItems(ctx, j.timeout)
		}
		if err != nil {
			j.logger.Errorf("Failed to recover stale items of queue %q: %v", q.name, err)
		}
		if n > 0 {
			j.logger.Infof("Recovered %d stale processing list(s) of queue %q", n, q.name)
		}
	}
}
