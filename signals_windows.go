// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

//go:build windows

package rqueue

import (
	"os"
	"os/signal"
)

// waitForSignals blocks until an interrupt is received.
func (r *Reaper) waitForSignals() {
	r.logger.Info("Listening for signals...")
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	<-sigs
}
