// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package database

import (
	"errors"
	"fmt"
	"strings"
)

// The pipeline's error taxonomy:
//
//   - SchemaMismatchError: a source batch does not match the canonical event
//     schema. Fatal configuration error: it signals upstream data drift, so
//     the run aborts and is never retried.
//   - SwapFailureError: the fusion promote transaction failed. Fatal and
//     surfaced loudly; the transaction rollback guarantees the prior event
//     relation stays active.
//   - Transient store errors: the persistence layer was unreachable or
//     overloaded. Retried with a fixed delay at the stage boundary, never
//     mid-stage.
//
// Unmatched join keys and missing profile inputs are not errors: fusion
// drops events without a catalog row (documented lossy policy) and
// segmentation treats missing inputs as zero.

// SchemaMismatchError reports a source batch whose columns do not match the
// canonical event schema.
type SchemaMismatchError struct {
	Batch    string   // source file or table the mismatch was found in
	Expected []string // canonical column names, in order
	Actual   []string // columns found, in order
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in batch %s: expected columns (%s), found (%s)",
		e.Batch, strings.Join(e.Expected, ", "), strings.Join(e.Actual, ", "))
}

// SwapFailureError reports a failed backup-and-swap promote. The wrapped
// error is the underlying transaction failure; the prior relation remains
// the active one.
type SwapFailureError struct {
	Err error
}

func (e *SwapFailureError) Error() string {
	return fmt.Sprintf("fusion promote swap failed, prior event relation remains active: %v", e.Err)
}

func (e *SwapFailureError) Unwrap() error {
	return e.Err
}

// errTransient marks an error as retryable at the stage boundary.
var errTransient = errors.New("transient store error")

// MarkTransient wraps err so IsTransient reports true for it.
// Returns nil when err is nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errTransient, err)
}

// IsTransient reports whether err was marked transient, either explicitly
// via MarkTransient or by matching known driver-level connectivity failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errTransient) {
		return true
	}

	// Fatal classifications always win over the string heuristics below.
	var schemaErr *SchemaMismatchError
	var swapErr *SwapFailureError
	if errors.As(err, &schemaErr) || errors.As(err, &swapErr) {
		return false
	}

	// The DuckDB driver does not expose typed connectivity errors. Only
	// lock contention and connectivity are retryable; broader markers like
	// "IO Error" would also match fatal misconfiguration (a mistyped source
	// path failing inside read_csv) and retry it pointlessly.
	msg := err.Error()
	for _, marker := range []string{
		"database is locked",
		"could not set lock",
		"connection refused",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
