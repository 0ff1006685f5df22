// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func serveCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a JSON inspection API and Prometheus metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address, overrides serve.addr"},
			&cli.StringSliceFlag{Name: "queue", Usage: "Queue to export metrics for, overrides serve.queues"},
			&cli.StringSliceFlag{Name: "pool", Usage: "Pool to export metrics for, overrides serve.pools"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			sc := e.cfg.Serve
			if cmd.IsSet("addr") {
				sc.Addr = cmd.String("addr")
			}
			if cmd.IsSet("queue") {
				sc.Queues = cmd.StringSlice("queue")
			}
			if cmd.IsSet("pool") {
				sc.Pools = cmd.StringSlice("pool")
			}
			inspector, err := e.inspector()
			if err != nil {
				return err
			}
			if err := inspector.Ping(ctx); err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				&collector{
					inspector: inspector,
					clock:     clockwork.NewRealClock(),
					queues:    sc.Queues,
					pools:     sc.Pools,
					timeout:   sc.ReadTimeout,
					logger:    e.logger,
				},
			)
			h := &handler{inspector: inspector, logger: e.logger}
			srv := &http.Server{
				Addr:              sc.Addr,
				Handler:           newRouter(h, registry, sc.ReadTimeout),
				ReadHeaderTimeout: sc.ReadTimeout,
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				e.logger.Info("Serving on ", sc.Addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				e.logger.Info("Shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(sctx)
			})
			return g.Wait()
		},
	}
}
