// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

// Package catalog loads the raw product catalog and resolves its duplicate
// rows into one canonical entry per product.
//
// The raw catalog may carry many rows for the same product_id with partially
// filled attributes. Resolution keeps, for each attribute independently, the
// first non-null value in load order. "First" is pinned by an explicit
// row_seq ordering key assigned at load time, so repeated runs over the same
// file resolve identically. Resolution never invents values: an attribute
// with no non-null occurrence stays null, and a product with zero raw rows
// is absent from the output.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/averal/mercatus/internal/database"
	"github.com/averal/mercatus/internal/logging"
	"github.com/averal/mercatus/internal/models"
)

// ErrProductNotFound is returned by Entry for products absent from the
// resolved catalog.
var ErrProductNotFound = errors.New("product not found in catalog")

// Resolver is the catalog resolution stage.
type Resolver struct {
	db *database.DB
}

// NewResolver creates a resolver writing to db.
func NewResolver(db *database.DB) *Resolver {
	return &Resolver{db: db}
}

// Run loads the raw catalog CSV and resolves it into the canonical catalog
// relation. Returns the raw and resolved row counts.
func (r *Resolver) Run(ctx context.Context, catalogPath string) (raw, resolved int64, err error) {
	if err := r.load(ctx, catalogPath); err != nil {
		return 0, 0, err
	}
	if err := r.resolve(ctx); err != nil {
		return 0, 0, err
	}

	if raw, err = r.db.CountRows(ctx, database.TableCatalogRaw); err != nil {
		return 0, 0, err
	}
	if resolved, err = r.db.CountRows(ctx, database.TableCatalog); err != nil {
		return 0, 0, err
	}

	logging.Info().
		Int64("raw_rows", raw).
		Int64("resolved_rows", resolved).
		Msg("Catalog resolved")
	return raw, resolved, nil
}

// load reads the raw catalog into catalog_raw, tagging every row with its
// load-order position. row_number() over the read_csv scan follows file
// order, which is what makes "first non-null" deterministic.
func (r *Resolver) load(ctx context.Context, path string) error {
	cols := make([]string, len(database.CatalogSchema))
	specs := make([]string, len(database.CatalogSchema))
	for i, c := range database.CatalogSchema {
		cols[i] = c.Name
		specs[i] = fmt.Sprintf("'%s': '%s'", c.Name, c.Type)
	}

	query := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS
		 SELECT row_number() OVER () AS row_seq, %s
		 FROM read_csv(?, header = true, columns = {%s})`,
		database.TableCatalogRaw,
		strings.Join(cols, ", "),
		strings.Join(specs, ", "),
	)
	if _, err := r.db.Conn().ExecContext(ctx, query, path); err != nil {
		return fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return nil
}

// Entry returns one product's resolved catalog entry. Attributes with no
// non-null raw occurrence come back nil.
func (r *Resolver) Entry(ctx context.Context, productID int64) (*models.CatalogEntry, error) {
	var (
		entry        = models.CatalogEntry{ProductID: productID}
		categoryID   sql.NullInt64
		categoryCode sql.NullString
		brand        sql.NullString
	)
	err := r.db.Conn().QueryRowContext(ctx, fmt.Sprintf(
		`SELECT category_id, category_code, brand FROM %s WHERE product_id = ?`,
		database.TableCatalog), productID,
	).Scan(&categoryID, &categoryCode, &brand)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up product %d: %w", productID, err)
	}

	if categoryID.Valid {
		entry.CategoryID = &categoryID.Int64
	}
	if categoryCode.Valid {
		entry.CategoryCode = &categoryCode.String
	}
	if brand.Valid {
		entry.Brand = &brand.String
	}
	return &entry, nil
}

// resolve collapses catalog_raw into one row per product_id. Each attribute
// takes the value from the lowest row_seq where it is non-null; attributes
// resolve independently, so one product's canonical row can mix values from
// different raw rows.
func (r *Resolver) resolve(ctx context.Context) error {
	query := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS
		 SELECT
			product_id,
			arg_min(category_id, row_seq) FILTER (WHERE category_id IS NOT NULL) AS category_id,
			arg_min(category_code, row_seq) FILTER (WHERE category_code IS NOT NULL) AS category_code,
			arg_min(brand, row_seq) FILTER (WHERE brand IS NOT NULL) AS brand
		 FROM %s
		 GROUP BY product_id`,
		database.TableCatalog, database.TableCatalogRaw)
	if _, err := r.db.Conn().ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to resolve catalog: %w", err)
	}
	return nil
}
