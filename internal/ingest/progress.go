// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package ingest

import (
	"sync"
	"time"

	"github.com/averal/mercatus/internal/logging"
)

// Reporter logs elapsed time at a fixed interval while a bulk load runs.
// It mutates no shared state (it only reads the clock) and must never
// outlive the load: Stop blocks until the goroutine has exited.
type Reporter struct {
	label    string
	started  time.Time
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// StartReporter begins periodic elapsed-time logging. A non-positive
// interval returns nil; a nil Reporter's Stop is a no-op, so callers can
// unconditionally defer it.
func StartReporter(label string, interval time.Duration) *Reporter {
	if interval <= 0 {
		return nil
	}

	r := &Reporter{
		label:    label,
		started:  time.Now(),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go r.run(interval)
	return r
}

func (r *Reporter) run(interval time.Duration) {
	defer close(r.doneChan)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			logging.Debug().
				Str("activity", r.label).
				Dur("elapsed", time.Since(r.started)).
				Msg("Still running")
		}
	}
}

// Stop signals the reporter to exit and waits for it. Safe to call on a nil
// Reporter; repeated calls are no-ops.
func (r *Reporter) Stop() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() {
		close(r.stopChan)
		<-r.doneChan

		logging.Info().
			Str("activity", r.label).
			Dur("elapsed", time.Since(r.started)).
			Msg("Activity finished")
	})
}

// Elapsed returns the time since the reporter started.
func (r *Reporter) Elapsed() time.Duration {
	if r == nil {
		return 0
	}
	return time.Since(r.started)
}
