// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package database

import (
	"context"
	"fmt"

	"github.com/averal/mercatus/internal/logging"
)

// ExportRelationCSV copies the named relation to a CSV file with a header
// row. Downstream reporting collaborators consume these files without
// touching the store.
func (db *DB) ExportRelationCSV(ctx context.Context, relation, outputPath string) error {
	if !ValidIdentifier(relation) {
		return fmt.Errorf("invalid relation name %q", relation)
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	exists, err := db.RelationExists(ctx, relation)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("relation %s does not exist", relation)
	}

	query := fmt.Sprintf("COPY %s TO ? (FORMAT CSV, HEADER)", relation)
	if _, err := db.conn.ExecContext(ctx, query, outputPath); err != nil {
		return fmt.Errorf("failed to export %s to %s: %w", relation, outputPath, err)
	}

	logging.Info().
		Str("relation", relation).
		Str("path", outputPath).
		Msg("Exported relation to CSV")
	return nil
}
