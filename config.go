// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package rqueue

import (
	"fmt"
	"strings"
	"time"

	"github.com/hemant/rqueue/internal/log"
	"github.com/jonboulle/clockwork"
)

// Config specifies the behavior of a Pool, Queue or UniqueQueue.
// It is applied once at construction.
type Config struct {
	// ChunkSize is the number of items sent to redis in one batch.
	//
	// If unset or zero, 100 is used for Pool and 10 for Queue and UniqueQueue.
	ChunkSize int

	// SyncedReplicas configures the optional wait for replicas after every write.
	SyncedReplicas SyncedReplicasConfig

	// AckTTL specifies how long a claimed pool item stays checked out before
	// another worker may claim it again. Only used by Pool.
	//
	// If unset or zero, 10 minutes is used. The value is truncated to whole
	// seconds with a minimum of one second.
	AckTTL time.Duration

	// AckValidFor specifies how long an acknowledged pool item waits before it
	// becomes eligible again. Only used by Pool.
	//
	// If unset or zero, 36 hours is used. Sub-second precision is dropped.
	AckValidFor time.Duration

	// Clock is the source of the current time.
	//
	// If unset, the wall clock is used.
	Clock clockwork.Clock

	// Logger specifies the logger used by the instance.
	//
	// If unset, default logger is used.
	Logger Logger

	// LogLevel specifies the minimum log level to enable.
	//
	// If unset, InfoLevel is used by default.
	LogLevel LogLevel
}

// SyncedReplicasConfig configures the durability wait.
//
// When enabled, every mutating call blocks until Count replicas acknowledged
// the write or Timeout elapses. Falling short returns an error matching
// ErrNotEnoughSyncedReplicas; the write itself stays applied.
type SyncedReplicasConfig struct {
	Enabled bool

	// Count is the number of replicas that must acknowledge.
	Count int

	// Timeout is passed to WAIT in milliseconds.
	//
	// If unset or zero, 100 milliseconds is used.
	Timeout time.Duration
}

const (
	defaultPoolChunkSize  = 100
	defaultQueueChunkSize = 10

	// DefaultAckTTL is the default visibility timeout of a claimed pool item.
	DefaultAckTTL = 600 * time.Second

	// DefaultAckValidFor is the default delay before an acknowledged pool item is due again.
	DefaultAckValidFor = 129600 * time.Second

	// DefaultProcessingTimeout is the claim age after which a processing list
	// is considered abandoned by its worker.
	DefaultProcessingTimeout = 7200 * time.Second

	defaultSyncedReplicasTimeout = 100 * time.Millisecond
)

// Logger supports logging at various log levels.
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(args ...interface{})

	// Info logs a message at Info level.
	Info(args ...interface{})

	// Warn logs a message at Warning level.
	Warn(args ...interface{})

	// Error logs a message at Error level.
	Error(args ...interface{})

	// Fatal logs a message at Fatal level
	// and process will exit with status set to 1.
	Fatal(args ...interface{})
}

// LogLevel represents logging level.
type LogLevel int32

const (
	// Note: reserving value zero to differentiate unspecified case.
	level_unspecified LogLevel = iota

	// DebugLevel is the lowest level of logging.
	DebugLevel

	// InfoLevel is used for general informational log messages.
	InfoLevel

	// WarnLevel is used for undesired but relatively expected events.
	WarnLevel

	// ErrorLevel is used for undesired and unexpected events.
	ErrorLevel

	// FatalLevel is used for undesired and unexpected events that
	// the program cannot recover from.
	FatalLevel
)

// String is part of the flag.Value interface.
func (l *LogLevel) String() string {
	switch *l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	}
	panic(fmt.Sprintf("rqueue: unexpected log level: %v", *l))
}

// Set is part of the flag.Value interface.
func (l *LogLevel) Set(val string) error {
	switch strings.ToLower(val) {
	case "debug":
		*l = DebugLevel
	case "info":
		*l = InfoLevel
	case "warn", "warning":
		*l = WarnLevel
	case "error":
		*l = ErrorLevel
	case "fatal":
		*l = FatalLevel
	default:
		return fmt.Errorf("rqueue: unsupported log level %q", val)
	}
	return nil
}

func toInternalLogLevel(l LogLevel) log.Level {
	switch l {
	case DebugLevel:
		return log.DebugLevel
	case InfoLevel:
		return log.InfoLevel
	case WarnLevel:
		return log.WarnLevel
	case ErrorLevel:
		return log.ErrorLevel
	case FatalLevel:
		return log.FatalLevel
	}
	panic(fmt.Sprintf("rqueue: unexpected log level: %v", l))
}

// options holds the resolved Config shared by all primitives.
type options struct {
	chunkSize   int
	ackTTL      int64
	ackValidFor int64
	clock       clockwork.Clock
	logger      *log.Logger
	durability  *durability
}

func newOptions(cfg Config, defaultChunkSize int, w replicaWaiter) options {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	ackTTL := cfg.AckTTL
	if ackTTL <= 0 {
		ackTTL = DefaultAckTTL
	}
	ackValidFor := cfg.AckValidFor
	if ackValidFor <= 0 {
		ackValidFor = DefaultAckValidFor
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := newLogger(cfg.Logger, cfg.LogLevel)
	timeout := cfg.SyncedReplicas.Timeout
	if timeout <= 0 {
		timeout = defaultSyncedReplicasTimeout
	}
	ackTTLSecs := int64(ackTTL / time.Second)
	if ackTTLSecs < 1 {
		ackTTLSecs = 1
	}
	return options{
		chunkSize:   chunkSize,
		ackTTL:      ackTTLSecs,
		ackValidFor: int64(ackValidFor / time.Second),
		clock:       clock,
		logger:      logger,
		durability: &durability{
			waiter:  w,
			logger:  logger,
			enabled: cfg.SyncedReplicas.Enabled,
			count:   cfg.SyncedReplicas.Count,
			timeout: timeout,
		},
	}
}

func newLogger(base Logger, level LogLevel) *log.Logger {
	logger := log.NewLogger(base)
	if level == level_unspecified {
		level = InfoLevel
	}
	logger.SetLevel(toInternalLogLevel(level))
	return logger
}

// now returns the current unix time in seconds.
func (o options) now() int64 {
	return o.clock.Now().Unix()
}
