// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartReporterDisabled(t *testing.T) {
	var r *Reporter

	assert.Nil(t, StartReporter("load", 0))
	assert.Nil(t, StartReporter("load", -time.Second))

	// Stop and Elapsed on a nil reporter must not panic.
	r.Stop()
	assert.Zero(t, r.Elapsed())
}

func TestReporterStops(t *testing.T) {
	r := StartReporter("load", 5*time.Millisecond)
	assert.NotNil(t, r)

	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, r.Elapsed(), time.Duration(0))

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return, reporter goroutine leaked")
	}
}

func TestReporterStopIsIdempotent(t *testing.T) {
	r := StartReporter("load", 5*time.Millisecond)
	require.NotNil(t, r)

	r.Stop()
	assert.NotPanics(t, func() { r.Stop() })
}
