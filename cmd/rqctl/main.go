// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Command rqctl inspects and maintains rqueue queues and pools, runs a
// reaper process and serves an inspection endpoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hemant/rqueue/internal/base"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rqctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	e := &env{}
	return &cli.Command{
		Name:    "rqctl",
		Usage:   "Inspect and maintain rqueue queues and pools",
		Version: base.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				Sources: cli.EnvVars("RQ_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "redis-uri",
				Usage: "Redis URI, overrides redis.uri",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "One of debug, info, warn, error, overrides log.level",
			},
		},
		Before: e.before,
		After:  e.after,
		Commands: []*cli.Command{
			queueCommand(e),
			poolCommand(e),
			reaperCommand(e),
			serveCommand(e),
		},
	}
}
