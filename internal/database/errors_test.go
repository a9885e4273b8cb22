// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaMismatchError(t *testing.T) {
	err := &SchemaMismatchError{
		Batch:    "data_2022_dec.csv",
		Expected: []string{"event_time", "event_type"},
		Actual:   []string{"event_time", "kind"},
	}

	assert.Contains(t, err.Error(), "data_2022_dec.csv")
	assert.Contains(t, err.Error(), "event_type")
	assert.Contains(t, err.Error(), "kind")

	var target *SchemaMismatchError
	require.ErrorAs(t, fmt.Errorf("stage failed: %w", err), &target)
	assert.Equal(t, "data_2022_dec.csv", target.Batch)
}

func TestSwapFailureErrorUnwrap(t *testing.T) {
	cause := errors.New("table events_fused does not exist")
	err := &SwapFailureError{Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "prior event relation remains active")
}

func TestMarkTransient(t *testing.T) {
	assert.NoError(t, MarkTransient(nil))

	err := MarkTransient(errors.New("boom"))
	assert.True(t, IsTransient(err))
	assert.True(t, IsTransient(fmt.Errorf("stage failed: %w", err)))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("something broke"), want: false},
		{name: "locked database", err: errors.New("could not set lock on file"), want: true},
		{name: "connection refused", err: errors.New("dial: connection refused"), want: true},
		{
			// A bad source path surfaces as an IO Error from read_csv;
			// retrying cannot fix configuration.
			name: "io error is not retryable",
			err:  errors.New(`IO Error: No files found that match the pattern "/data/missing.csv"`),
			want: false,
		},
		{
			name: "schema mismatch is fatal",
			err:  &SchemaMismatchError{Batch: "x.csv"},
			want: false,
		},
		{
			// The fatal classification wins even when the wrapped cause
			// matches a transient string marker.
			name: "swap failure wrapping io error is fatal",
			err:  &SwapFailureError{Err: errors.New("IO Error: disk full")},
			want: false,
		},
		{
			name: "wrapped swap failure is fatal",
			err:  fmt.Errorf("stage fuse_events: %w", &SwapFailureError{Err: errors.New("boom")}),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
