// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/hemant/rqueue"
	"github.com/urfave/cli/v3"
)

func reaperCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "reaper",
		Usage: "Recover stale processing lists on a schedule until interrupted",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "queue", Usage: "Queue to watch, overrides reaper.queues"},
			&cli.StringSliceFlag{Name: "unique-queue", Usage: "UniqueQueue to watch, overrides reaper.unique-queues"},
			&cli.DurationFlag{Name: "interval", Usage: "Time between two runs, overrides reaper.interval"},
			&cli.DurationFlag{Name: "timeout", Usage: "Claim age after which a list is stale, overrides reaper.timeout"},
			&cli.BoolFlag{Name: "drop", Usage: "Discard stale items instead of re-enqueueing them"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rc := e.cfg.Reaper
			if cmd.IsSet("queue") {
				rc.Queues = cmd.StringSlice("queue")
			}
			if cmd.IsSet("unique-queue") {
				rc.UniqueQueues = cmd.StringSlice("unique-queue")
			}
			if cmd.IsSet("interval") {
				rc.Interval = cmd.Duration("interval")
			}
			if cmd.IsSet("timeout") {
				rc.Timeout = cmd.Duration("timeout")
			}
			if cmd.Bool("drop") {
				rc.Drop = true
			}
			if len(rc.Queues)+len(rc.UniqueQueues) == 0 {
				return fmt.Errorf("no queue to watch")
			}
			client, err := e.redisClient()
			if err != nil {
				return err
			}
			pc := e.primitiveConfig()
			reaper := rqueue.NewReaperFromRedisClient(client, rqueue.ReaperConfig{
				Queues:         rc.Queues,
				UniqueQueues:   rc.UniqueQueues,
				Interval:       rc.Interval,
				Timeout:        rc.Timeout,
				Drop:           rc.Drop,
				SyncedReplicas: pc.SyncedReplicas,
				Logger:         pc.Logger,
				LogLevel:       pc.LogLevel,
				HealthCheckFunc: func(err error) {
					if err != nil {
						e.logger.Error("redis health check failed: ", err)
					}
				},
			})
			return reaper.Run()
		},
	}
}
