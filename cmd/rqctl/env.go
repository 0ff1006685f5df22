// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hemant/rqueue"
	"github.com/hemant/rqueue/internal/config"
	"github.com/hemant/rqueue/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

// env holds what every subcommand needs. It is filled in by before.
type env struct {
	cfg      *config.Config
	logger   rqueue.Logger
	logLevel rqueue.LogLevel
	logFile  *lumberjack.Logger
	client   redis.UniversalClient
}

func (e *env) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	if uri := cmd.String("redis-uri"); uri != "" {
		cfg.Redis.URI = uri
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	e.cfg = cfg
	if err := e.logLevel.Set(cfg.Log.Level); err != nil {
		return ctx, err
	}
	e.logger = e.newLogger(cfg.Log)
	return ctx, nil
}

func (e *env) after(ctx context.Context, cmd *cli.Command) error {
	if e.client != nil {
		e.client.Close()
	}
	if e.logFile != nil {
		return e.logFile.Close()
	}
	return nil
}

// newLogger writes to stderr and, when configured, to a rotated file.
func (e *env) newLogger(cfg config.LogConfig) rqueue.Logger {
	var w io.Writer = os.Stderr
	noColor := cfg.NoColor
	if cfg.File != "" {
		e.logFile = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		w = io.MultiWriter(os.Stderr, e.logFile)
		noColor = true
	}
	return log.NewSlogBase(slog.New(log.NewTintHandler(w, noColor)))
}

// redisClient connects lazily so that commands failing on arguments do
// not need a reachable server.
func (e *env) redisClient() (redis.UniversalClient, error) {
	if e.client != nil {
		return e.client, nil
	}
	opt, err := rqueue.ParseRedisURI(e.cfg.Redis.URI)
	if err != nil {
		return nil, err
	}
	e.client = opt.MakeRedisClient().(redis.UniversalClient)
	return e.client, nil
}

func (e *env) primitiveConfig() rqueue.Config {
	return rqueue.Config{
		ChunkSize: e.cfg.ChunkSize,
		SyncedReplicas: rqueue.SyncedReplicasConfig{
			Enabled: e.cfg.SyncedReplicas.Enabled,
			Count:   e.cfg.SyncedReplicas.Count,
			Timeout: e.cfg.SyncedReplicas.Timeout,
		},
		AckTTL:      e.cfg.Pool.AckTTL,
		AckValidFor: e.cfg.Pool.AckValidFor,
		Logger:      e.logger,
		LogLevel:    e.logLevel,
	}
}
