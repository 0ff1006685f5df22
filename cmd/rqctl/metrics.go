// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package main

import (
	"context"
	"time"

	"github.com/hemant/rqueue"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	queuePendingDesc = prometheus.NewDesc(
		"rqueue_queue_pending_items", "Number of items waiting to be claimed.",
		[]string{"queue"}, nil)
	queueInFlightDesc = prometheus.NewDesc(
		"rqueue_queue_in_flight_items", "Number of items held in processing lists.",
		[]string{"queue"}, nil)
	queueWorkersDesc = prometheus.NewDesc(
		"rqueue_queue_workers", "Number of processing lists holding items.",
		[]string{"queue"}, nil)
	queueOldestClaimDesc = prometheus.NewDesc(
		"rqueue_queue_oldest_claim_age_seconds", "Age of the oldest claim time among processing lists.",
		[]string{"queue"}, nil)
	poolItemsDesc = prometheus.NewDesc(
		"rqueue_pool_items", "Number of items in the pool.",
		[]string{"pool"}, nil)
	poolReadyDesc = prometheus.NewDesc(
		"rqueue_pool_ready_items", "Number of pool items due now.",
		[]string{"pool"}, nil)
	poolClaimedDesc = prometheus.NewDesc(
		"rqueue_pool_claimed_items", "Number of claimed pool items, expired or not.",
		[]string{"pool"}, nil)
)

// collector reads queue and pool state from redis on every scrape.
type collector struct {
	inspector *rqueue.Inspector
	clock     clockwork.Clock
	queues    []string
	pools     []string
	timeout   time.Duration
	logger    rqueue.Logger
}

var _ prometheus.Collector = (*collector)(nil)

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queuePendingDesc
	ch <- queueInFlightDesc
	ch <- queueWorkersDesc
	ch <- queueOldestClaimDesc
	ch <- poolItemsDesc
	ch <- poolReadyDesc
	ch <- poolClaimedDesc
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	for _, qname := range c.queues {
		info, err := c.inspector.QueueInfo(ctx, qname)
		if err != nil {
			c.logger.Error("failed to collect queue ", qname, ": ", err)
			ch <- prometheus.NewInvalidMetric(queuePendingDesc, err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(queuePendingDesc, prometheus.GaugeValue, float64(info.Pending), qname)
		ch <- prometheus.MustNewConstMetric(queueInFlightDesc, prometheus.GaugeValue, float64(info.InFlight), qname)
		ch <- prometheus.MustNewConstMetric(queueWorkersDesc, prometheus.GaugeValue, float64(len(info.Leases)), qname)
		var age float64
		for _, l := range info.Leases {
			if a := c.clock.Since(l.ClaimedAt).Seconds(); a > age {
				age = a
			}
		}
		ch <- prometheus.MustNewConstMetric(queueOldestClaimDesc, prometheus.GaugeValue, age, qname)
	}
	for _, pname := range c.pools {
		info, err := c.inspector.PoolInfo(ctx, pname)
		if err != nil {
			c.logger.Error("failed to collect pool ", pname, ": ", err)
			ch <- prometheus.NewInvalidMetric(poolItemsDesc, err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(poolItemsDesc, prometheus.GaugeValue, float64(info.Total), pname)
		ch <- prometheus.MustNewConstMetric(poolReadyDesc, prometheus.GaugeValue, float64(info.Ready), pname)
		ch <- prometheus.MustNewConstMetric(poolClaimedDesc, prometheus.GaugeValue, float64(info.Claimed), pname)
	}
}
