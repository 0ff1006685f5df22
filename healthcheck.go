// Copyright 2020 Kentaro Hibino. All rights reserved.
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

type pinger interface {
	Ping(ctx context.Context) error
}

// healthchecker pings redis on every tick and hands the result to the
// user's callback. Transitions between reachable and unreachable are logged.
type healthchecker struct {
	logger   *log.Logger
	redis    pinger
	clock    clockwork.Clock
	interval time.Duration
	report   func(error)

	done    chan struct{}
	healthy bool
}

type healthcheckerParams struct {
	logger          *log.Logger
	broker          pinger
	clock           clockwork.Clock
	interval        time.Duration
	healthcheckFunc func(error)
}

func newHealthChecker(params healthcheckerParams) *healthchecker {
	return &healthchecker{
		logger:   params.logger,
		redis:    params.broker,
		clock:    params.clock,
		interval: params.interval,
		report:   params.healthcheckFunc,
		done:     make(chan struct{}),
		healthy:  true,
	}
}

// enabled reports whether there is anyone to report to.
func (hc *healthchecker) enabled() bool { return hc.report != nil }

func (hc *healthchecker) start(wg *sync.WaitGroup) {
	if !hc.enabled() {
		return
	}
	ticker := hc.clock.NewTicker(hc.interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-hc.done:
				hc.logger.Debug("Healthchecker done")
				return
			case <-ticker.Chan():
				hc.check()
			}
		}
	}()
}

func (hc *healthchecker) shutdown() {
	if !hc.enabled() {
		return
	}
	hc.logger.Debug("Healthchecker shutting down...")
	close(hc.done)
}

func (hc *healthchecker) check() {
	ctx, cancel := context.WithTimeout(context.Background(), hc.interval)
	err := hc.redis.Ping(ctx)
	cancel()

	switch {
	case err != nil && hc.healthy:
		hc.logger.Warnf("Redis became unreachable: %v", err)
	case err == nil && !hc.healthy:
		hc.logger.Info("Redis is reachable again")
	}
	hc.healthy = err == nil
	hc.report(err)
}
