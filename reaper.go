// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hemant/rqueue/internal/base"
	"github.com/hemant/rqueue/internal/log"
	"github.com/hemant/rqueue/internal/rdb"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Reaper periodically recovers items held by workers that stopped claiming.
//
// The primitives never recover on their own. A Reaper is one way to run
// ReEnqueueTimeoutItems (or DropTimeoutItems) on a schedule; calling those
// methods directly is equally valid.
type Reaper struct {
	logger *log.Logger

	broker base.Broker
	// When a Reaper has been created with an existing Redis connection, we do
	// not want to close it.
	sharedConnection bool

	state *reaperState

	// wait group to wait for all goroutines to finish.
	wg            sync.WaitGroup
	janitor       *janitor
	healthchecker *healthchecker
}

type reaperState struct {
	mu    sync.Mutex
	value reaperStateValue
}

type reaperStateValue int

const (
	// StateNew represents a new reaper.
	reaperStateNew reaperStateValue = iota

	// StateActive indicates the reaper is up and active.
	reaperStateActive

	// StateStopped indicates the reaper is up but no longer reaping.
	reaperStateStopped

	// StateClosed indicates the reaper has been shutdown.
	reaperStateClosed
)

var reaperStates = []string{
	"new",
	"active",
	"stopped",
	"closed",
}

func (s reaperStateValue) String() string {
	if reaperStateNew <= s && s <= reaperStateClosed {
		return reaperStates[s]
	}
	return "unknown status"
}

// ReaperConfig specifies the reaper's behavior.
type ReaperConfig struct {
	// Names of plain queues to watch.
	Queues []string

	// Names of unique queues to watch.
	UniqueQueues []string

	// Interval between two reaping runs.
	//
	// If unset or zero, the interval is set to 1 minute.
	Interval time.Duration

	// Timeout is the claim age after which a processing list is recovered.
	//
	// If unset or zero, DefaultProcessingTimeout is used.
	Timeout time.Duration

	// Drop makes the reaper discard stale processing lists instead of
	// moving their items back to the queue.
	Drop bool

	// SyncedReplicas configures the durability wait after every run.
	SyncedReplicas SyncedReplicasConfig

	// Clock is the source of the current time.
	//
	// If unset, the wall clock is used.
	Clock clockwork.Clock

	// Logger specifies the logger used by the reaper instance.
	//
	// If unset, default logger is used.
	Logger Logger

	// LogLevel specifies the minimum log level to enable.
	//
	// If unset, InfoLevel is used by default.
	LogLevel LogLevel

	// HealthCheckFunc is called periodically with any errors encountered during ping to the
	// connected redis server.
	HealthCheckFunc func(error)

	// HealthCheckInterval specifies the interval between healthchecks.
	//
	// If unset or zero, the interval is set to 15 seconds.
	HealthCheckInterval time.Duration
}

const (
	defaultReaperInterval      = 1 * time.Minute
	defaultHealthCheckInterval = 15 * time.Second
)

// NewReaper returns a new Reaper given a redis connection option
// and reaper configuration.
func NewReaper(r RedisConnOpt, cfg ReaperConfig) *Reaper {
	reaper := NewReaperFromRedisClient(makeRedisClient(r), cfg)
	reaper.sharedConnection = false
	return reaper
}

// NewReaperFromRedisClient returns a new instance of Reaper given a redis.UniversalClient
// and reaper configuration.
func NewReaperFromRedisClient(c redis.UniversalClient, cfg ReaperConfig) *Reaper {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	qcfg := Config{
		SyncedReplicas: cfg.SyncedReplicas,
		Clock:          clock,
		Logger:         cfg.Logger,
		LogLevel:       cfg.LogLevel,
	}
	var queues []*queue
	for _, qname := range cfg.Queues {
		if err := base.ValidateName(qname); err != nil {
			continue // ignore invalid queue names
		}
		q := newQueue(qname, c, qcfg, false)
		queues = append(queues, &q)
	}
	for _, qname := range cfg.UniqueQueues {
		if err := base.ValidateName(qname); err != nil {
			continue
		}
		q := newQueue(qname, c, qcfg, true)
		queues = append(queues, &q)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultReaperInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultProcessingTimeout
	}
	healthcheckInterval := cfg.HealthCheckInterval
	if healthcheckInterval <= 0 {
		healthcheckInterval = defaultHealthCheckInterval
	}
	logger := newLogger(cfg.Logger, cfg.LogLevel)

	broker := rdb.NewRDB(c)
	janitor := newJanitor(janitorParams{
		logger:   logger,
		clock:    clock,
		queues:   queues,
		interval: interval,
		timeout:  timeout,
		drop:     cfg.Drop,
	})
	healthchecker := newHealthChecker(healthcheckerParams{
		logger:          logger,
		broker:          broker,
		clock:           clock,
		interval:        healthcheckInterval,
		healthcheckFunc: cfg.HealthCheckFunc,
	})
	return &Reaper{
		logger:           logger,
		broker:           broker,
		sharedConnection: true,
		state:            &reaperState{value: reaperStateNew},
		janitor:          janitor,
		healthchecker:    healthchecker,
	}
}

// ErrReaperClosed indicates that the operation is now illegal because of the reaper has been shutdown.
var ErrReaperClosed = errors.New("rqueue: Reaper closed")

// Run starts the reaper and blocks until an os signal to exit the program
// is received. Once it receives a signal, it gracefully shuts down.
func (r *Reaper) Run() error {
	if err := r.Start(); err != nil {
		return err
	}
	r.waitForSignals()
	r.Shutdown()
	return nil
}

// Start starts the background goroutines of the reaper.
func (r *Reaper) Start() error {
	if err := r.start(); err != nil {
		return err
	}
	r.logger.Info("Starting reaper")

	r.healthchecker.start(&r.wg)
	r.janitor.start(&r.wg)
	return nil
}

// Checks reaper state and returns an error if pre-condition is not met.
// Otherwise it sets the reaper state to active.
func (r *Reaper) start() error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	switch r.state.value {
	case reaperStateActive:
		return fmt.Errorf("rqueue: the reaper is already running")
	case reaperStateStopped:
		return fmt.Errorf("rqueue: the reaper is in the stopped state. Waiting for shutdown.")
	case reaperStateClosed:
		return ErrReaperClosed
	}
	r.state.value = reaperStateActive
	return nil
}

// Shutdown gracefully shuts down the reaper.
func (r *Reaper) Shutdown() {
	r.state.mu.Lock()
	if r.state.value == reaperStateNew || r.state.value == reaperStateClosed {
		r.state.mu.Unlock()
		return
	}
	r.state.value = reaperStateClosed
	r.state.mu.Unlock()

	r.logger.Info("Starting graceful shutdown")
	r.janitor.shutdown()
	r.healthchecker.shutdown()
	r.wg.Wait()

	if !r.sharedConnection {
		r.broker.Close()
	}
	r.logger.Info("Exiting")
}

// Stop signals the reaper to stop reaping. Health checks keep running
// until Shutdown.
func (r *Reaper) Stop() {
	r.state.mu.Lock()
	if r.state.value != reaperStateActive {
		r.state.mu.Unlock()
		return
	}
	r.state.value = reaperStateStopped
	r.state.mu.Unlock()

	r.logger.Info("Stopping reaper")
	r.janitor.shutdown()
	r.logger.Info("Reaper stopped")
}

// Ping performs a ping against the redis connection.
func (r *Reaper) Ping(ctx context.Context) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if r.state.value == reaperStateClosed {
		return nil
	}
	return r.broker.Ping(ctx)
}
