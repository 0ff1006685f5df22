// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hemant/rqueue"
	"github.com/hemant/rqueue/internal/base"
	"github.com/urfave/cli/v3"
)

// recoverer is implemented by both Queue and UniqueQueue.
type recoverer interface {
	AddItems(ctx context.Context, items []string) error
	ReEnqueueTimeoutItems(ctx context.Context, timeout time.Duration) (int, error)
	ReEnqueueAllItems(ctx context.Context) (int, error)
	DropTimeoutItems(ctx context.Context, timeout time.Duration) (int, error)
	DropAllItems(ctx context.Context) (int, error)
}

var uniqueFlag = &cli.BoolFlag{
	Name:    "unique",
	Aliases: []string{"u"},
	Usage:   "Treat the queue as a UniqueQueue",
}

func queueCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:    "queue",
		Aliases: []string{"q"},
		Usage:   "Queue and UniqueQueue commands",
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "Show pending count, dedup set size and worker leases",
				ArgsUsage: "<queue>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name, err := firstArg(cmd, "queue name")
					if err != nil {
						return err
					}
					inspector, err := e.inspector()
					if err != nil {
						return err
					}
					info, err := inspector.QueueInfo(ctx, name)
					if err != nil {
						return err
					}
					return printJSON(cmd.Root().Writer, info)
				},
			},
			{
				Name:      "pending",
				Usage:     "List pending items in the order they will be claimed",
				ArgsUsage: "<queue>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "Maximum number of items to print, 0 for all"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name, err := firstArg(cmd, "queue name")
					if err != nil {
						return err
					}
					inspector, err := e.inspector()
					if err != nil {
						return err
					}
					items, err := inspector.PendingItems(ctx, name)
					if err != nil {
						return err
					}
					if limit := int(cmd.Int("limit")); limit > 0 && len(items) > limit {
						items = items[:limit]
					}
					for _, item := range items {
						fmt.Fprintln(cmd.Root().Writer, item)
					}
					return nil
				},
			},
			{
				Name:      "add",
				Usage:     "Enqueue items",
				ArgsUsage: "<queue> <item>...",
				Flags:     []cli.Flag{uniqueFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					name, err := firstArg(cmd, "queue name")
					if err != nil {
						return err
					}
					items := cmd.Args().Tail()
					if len(items) == 0 {
						return fmt.Errorf("at least one item is required")
					}
					q, err := e.queue(name, cmd.Bool("unique"))
					if err != nil {
						return err
					}
					return q.AddItems(ctx, items)
				},
			},
			{
				Name:      "requeue",
				Usage:     "Move items of stale processing lists back to the queue",
				ArgsUsage: "<queue>",
				Flags:     recoverFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return e.recover(ctx, cmd, false)
				},
			},
			{
				Name:      "drop",
				Usage:     "Discard the items of stale processing lists",
				ArgsUsage: "<queue>",
				Flags:     recoverFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return e.recover(ctx, cmd, true)
				},
			},
		},
	}
}

func recoverFlags() []cli.Flag {
	return []cli.Flag{
		uniqueFlag,
		&cli.DurationFlag{
			Name:  "timeout",
			Value: rqueue.DefaultProcessingTimeout,
			Usage: "Claim age after which a processing list is stale",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Include processing lists of live workers",
		},
	}
}

func (e *env) recover(ctx context.Context, cmd *cli.Command, drop bool) error {
	name, err := firstArg(cmd, "queue name")
	if err != nil {
		return err
	}
	q, err := e.queue(name, cmd.Bool("unique"))
	if err != nil {
		return err
	}
	var n int
	switch timeout, all := cmd.Duration("timeout"), cmd.Bool("all"); {
	case drop && all:
		n, err = q.DropAllItems(ctx)
	case drop:
		n, err = q.DropTimeoutItems(ctx, timeout)
	case all:
		n, err = q.ReEnqueueAllItems(ctx)
	default:
		n, err = q.ReEnqueueTimeoutItems(ctx, timeout)
	}
	fmt.Fprintf(cmd.Root().Writer, "%d processing list(s) handled\n", n)
	return err
}

func (e *env) queue(name string, unique bool) (recoverer, error) {
	if err := base.ValidateName(name); err != nil {
		return nil, err
	}
	client, err := e.redisClient()
	if err != nil {
		return nil, err
	}
	if unique {
		return rqueue.NewUniqueQueueFromRedisClient(name, client, e.primitiveConfig()), nil
	}
	return rqueue.NewQueueFromRedisClient(name, client, e.primitiveConfig()), nil
}

func (e *env) inspector() (*rqueue.Inspector, error) {
	client, err := e.redisClient()
	if err != nil {
		return nil, err
	}
	return rqueue.NewInspectorFromRedisClient(client), nil
}

func firstArg(cmd *cli.Command, what string) (string, error) {
	if cmd.NArg() == 0 {
		return "", fmt.Errorf("%s is required", what)
	}
	return cmd.Args().First(), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
