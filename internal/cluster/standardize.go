// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package cluster

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Standardizer rescales each feature column to zero mean and unit variance,
// using the population standard deviation. A constant column (zero stddev)
// maps to all zeros rather than dividing by zero, which keeps it from
// influencing any distance.
type Standardizer struct {
	means   []float64
	stddevs []float64
}

// FitStandardizer computes per-column statistics over the given matrix.
// Rows are observations, columns features; every row must have the same
// width and the matrix must not be empty.
func FitStandardizer(data [][]float64) (*Standardizer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot standardize an empty matrix")
	}

	dims := len(data[0])
	col := make([]float64, len(data))
	s := &Standardizer{
		means:   make([]float64, dims),
		stddevs: make([]float64, dims),
	}
	for j := 0; j < dims; j++ {
		for i, row := range data {
			if len(row) != dims {
				return nil, fmt.Errorf("ragged matrix: row %d has %d columns, want %d", i, len(row), dims)
			}
			col[i] = row[j]
		}
		s.means[j] = stat.Mean(col, nil)
		s.stddevs[j] = stat.PopStdDev(col, nil)
	}
	return s, nil
}

// Transform returns a standardized copy of data; the input is not modified.
func (s *Standardizer) Transform(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		scaled := make([]float64, len(row))
		for j, v := range row {
			if s.stddevs[j] == 0 {
				scaled[j] = 0
				continue
			}
			scaled[j] = (v - s.means[j]) / s.stddevs[j]
		}
		out[i] = scaled
	}
	return out
}

// InverseTransform maps standardized rows back to the original feature
// scale. Values in a constant column return as that column's mean.
func (s *Standardizer) InverseTransform(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		orig := make([]float64, len(row))
		for j, v := range row {
			orig[j] = v*s.stddevs[j] + s.means[j]
		}
		out[i] = orig
	}
	return out
}
