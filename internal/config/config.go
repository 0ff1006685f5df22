// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package config loads the configuration of the rqctl command.
//
// Values come from, in increasing priority, built-in defaults, an optional
// YAML file and RQ_ prefixed environment variables. Command line flags are
// applied on top by the caller.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
//
// A double underscore separates sections and a single underscore becomes a
// dash: RQ_REAPER__UNIQUE_QUEUES sets reaper.unique-queues.
const EnvPrefix = "RQ_"

// Config is the complete configuration of rqctl.
type Config struct {
	Redis          RedisConfig          `koanf:"redis"`
	ChunkSize      int                  `koanf:"chunk-size"`
	SyncedReplicas SyncedReplicasConfig `koanf:"synced-replicas"`
	Pool           PoolConfig           `koanf:"pool"`
	Reaper         ReaperConfig         `koanf:"reaper"`
	Serve          ServeConfig          `koanf:"serve"`
	Log            LogConfig            `koanf:"log"`
}

type RedisConfig struct {
	// URI in one of the forms accepted by rqueue.ParseRedisURI.
	URI string `koanf:"uri"`
}

type SyncedReplicasConfig struct {
	Enabled bool          `koanf:"enabled"`
	Count   int           `koanf:"count"`
	Timeout time.Duration `koanf:"timeout"`
}

type PoolConfig struct {
	AckTTL      time.Duration `koanf:"ack-ttl"`
	AckValidFor time.Duration `koanf:"ack-valid-for"`
}

type ReaperConfig struct {
	Queues       []string      `koanf:"queues"`
	UniqueQueues []string      `koanf:"unique-queues"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	Drop         bool          `koanf:"drop"`
}

// ServeConfig configures the inspection endpoint.
type ServeConfig struct {
	Addr string `koanf:"addr"`

	// Queues and Pools are exported as metrics.
	Queues []string `koanf:"queues"`
	Pools  []string `koanf:"pools"`

	// ReadTimeout bounds every request, including the redis calls it makes.
	ReadTimeout time.Duration `koanf:"read-timeout"`
}

// LogConfig configures logging. File logging is enabled when File is set.
type LogConfig struct {
	Level      string `koanf:"level"`
	NoColor    bool   `koanf:"no-color"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max-size-mb"`
	MaxBackups int    `koanf:"max-backups"`
	MaxAgeDays int    `koanf:"max-age-days"`
	Compress   bool   `koanf:"compress"`
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{URI: "redis://localhost:6379/0"},
		SyncedReplicas: SyncedReplicasConfig{
			Timeout: 100 * time.Millisecond,
		},
		Pool: PoolConfig{
			AckTTL:      600 * time.Second,
			AckValidFor: 129600 * time.Second,
		},
		Reaper: ReaperConfig{
			Interval: time.Minute,
			Timeout:  7200 * time.Second,
		},
		Serve: ServeConfig{
			Addr:        ":8080",
			ReadTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads the YAML file at path, if path is not empty, and the
// environment on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RQ_SERVE__QUEUES=a,b -> serve.queues = [a b]
func envKey(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	key = strings.ReplaceAll(key, "_", "-")
	switch key {
	case "reaper.queues", "reaper.unique-queues", "serve.queues", "serve.pools":
		return key, splitList(value)
	}
	return key, value
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate reports the first invalid value of c.
func (c *Config) Validate() error {
	switch {
	case c.Redis.URI == "":
		return fmt.Errorf("redis.uri must not be empty")
	case c.ChunkSize < 0:
		return fmt.Errorf("chunk-size must not be negative, got %d", c.ChunkSize)
	case c.SyncedReplicas.Enabled && c.SyncedReplicas.Count <= 0:
		return fmt.Errorf("synced-replicas.count must be positive when enabled, got %d", c.SyncedReplicas.Count)
	case c.Log.File != "" && (c.Log.MaxSizeMB <= 0 || c.Log.MaxBackups <= 0 || c.Log.MaxAgeDays <= 0):
		return fmt.Errorf("invalid log rotation: size=%d backups=%d age_days=%d",
			c.Log.MaxSizeMB, c.Log.MaxBackups, c.Log.MaxAgeDays)
	}
	return nil
}
