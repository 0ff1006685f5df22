// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

//go:build !windows

package rqueue

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// waitForSignals blocks until SIGTERM or SIGINT is received.
// SIGTSTP stops reaping but keeps the process alive.
func (r *Reaper) waitForSignals() {
	r.logger.Info("Listening for signals...")
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGTSTP)
	for {
		sig := <-sigs
		if sig == unix.SIGTSTP {
			r.Stop()
			continue
		}
		break
	}
}
