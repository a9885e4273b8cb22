// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestFitStandardizerErrors(t *testing.T) {
	_, err := FitStandardizer(nil)
	assert.Error(t, err)

	_, err = FitStandardizer([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
}

func TestTransformCentersAndScales(t *testing.T) {
	data := [][]float64{
		{1, 100, 7},
		{2, 200, 7},
		{3, 300, 7},
		{4, 400, 7},
	}

	s, err := FitStandardizer(data)
	require.NoError(t, err)
	scaled := s.Transform(data)

	for j := 0; j < 2; j++ {
		col := make([]float64, len(scaled))
		for i, row := range scaled {
			col[i] = row[j]
		}
		assert.InDelta(t, 0, stat.Mean(col, nil), 1e-9, "column %d mean", j)
		assert.InDelta(t, 1, stat.PopStdDev(col, nil), 1e-9, "column %d stddev", j)
	}

	// The constant column scales to zero everywhere.
	for _, row := range scaled {
		assert.Zero(t, row[2])
	}

	// The input matrix is untouched.
	assert.Equal(t, 1.0, data[0][0])
}

func TestInverseTransformRoundTrips(t *testing.T) {
	data := [][]float64{
		{10, 0.5},
		{20, 0.1},
		{35, 0.9},
	}

	s, err := FitStandardizer(data)
	require.NoError(t, err)
	back := s.InverseTransform(s.Transform(data))

	for i := range data {
		for j := range data[i] {
			assert.InDelta(t, data[i][j], back[i][j], 1e-9)
		}
	}
}
