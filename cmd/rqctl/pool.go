// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/hemant/rqueue"
	"github.com/hemant/rqueue/internal/base"
	"github.com/urfave/cli/v3"
)

func poolCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:    "pool",
		Aliases: []string{"p"},
		Usage:   "Pool commands",
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "Show total, ready and claimed counts",
				ArgsUsage: "<pool>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name, err := firstArg(cmd, "pool name")
					if err != nil {
						return err
					}
					inspector, err := e.inspector()
					if err != nil {
						return err
					}
					info, err := inspector.PoolInfo(ctx, name)
					if err != nil {
						return err
					}
					return printJSON(cmd.Root().Writer, info)
				},
			},
			{
				Name:      "add",
				Usage:     "Add items, making them due now",
				ArgsUsage: "<pool> <item>...",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					p, err := e.pool(cmd)
					if err != nil {
						return err
					}
					items := cmd.Args().Tail()
					if len(items) == 0 {
						return fmt.Errorf("at least one item is required")
					}
					return p.AddItems(ctx, items)
				},
			},
			{
				Name:      "ack",
				Usage:     "Acknowledge claimed items regardless of who claimed them",
				ArgsUsage: "<pool> <item>...",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					p, err := e.pool(cmd)
					if err != nil {
						return err
					}
					return p.AckItems(ctx, cmd.Args().Tail())
				},
			},
			{
				Name:      "clear",
				Usage:     "Delete every item of the pool",
				ArgsUsage: "<pool>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "Do not ask for confirmation"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if !cmd.Bool("yes") {
						return fmt.Errorf("refusing to clear without --yes")
					}
					p, err := e.pool(cmd)
					if err != nil {
						return err
					}
					return p.ClearPool(ctx)
				},
			},
		},
	}
}

func (e *env) pool(cmd *cli.Command) (*rqueue.Pool, error) {
	name, err := firstArg(cmd, "pool name")
	if err != nil {
		return nil, err
	}
	if err := base.ValidateName(name); err != nil {
		return nil, err
	}
	client, err := e.redisClient()
	if err != nil {
		return nil, err
	}
	return rqueue.NewPoolFromRedisClient(name, client, e.primitiveConfig()), nil
}
