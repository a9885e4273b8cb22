// Mercatus - E-Commerce Event Warehouse and Customer Segmentation
// Copyright 2026 A. Veral (averal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averal/mercatus

package cluster

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

const (
	// kmeansRestarts is how many independent initializations each fit runs;
	// the restart with the lowest inertia wins.
	kmeansRestarts = 10

	// kmeansMaxIterations bounds a single Lloyd refinement.
	kmeansMaxIterations = 300
)

// kmeansFit is the outcome of one k-means fit: final centroids in the input
// (standardized) scale, one label per input row, and the total
// within-cluster sum of squared distances.
type kmeansFit struct {
	centroids [][]float64
	labels    []int
	inertia   float64
}

// fitKMeans clusters data into k groups. All randomness flows from the given
// source, so the same data, k, and seed always produce the same fit. The
// restarts share the source sequentially, matching how a seeded multi-init
// fit is conventionally reproduced.
func fitKMeans(data [][]float64, k int, rng *rand.Rand) (kmeansFit, error) {
	if k < 1 {
		return kmeansFit{}, fmt.Errorf("k must be at least 1, got %d", k)
	}
	if len(data) < k {
		return kmeansFit{}, fmt.Errorf("cannot form %d clusters from %d observations", k, len(data))
	}

	best := kmeansFit{inertia: math.Inf(1)}
	for r := 0; r < kmeansRestarts; r++ {
		fit := lloyd(data, seedCentroids(data, k, rng))
		if fit.inertia < best.inertia {
			best = fit
		}
	}
	return best, nil
}

// seedCentroids picks k initial centroids with the k-means++ scheme: the
// first uniformly at random, each subsequent one with probability
// proportional to its squared distance from the nearest centroid so far.
func seedCentroids(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, cloneRow(data[rng.Intn(len(data))]))

	dists := make([]float64, len(data))
	for len(centroids) < k {
		var total float64
		for i, row := range data {
			d := nearestSquaredDistance(row, centroids)
			dists[i] = d
			total += d
		}

		// All remaining points coincide with a centroid; fall back to a
		// uniform pick.
		if total == 0 {
			centroids = append(centroids, cloneRow(data[rng.Intn(len(data))]))
			continue
		}

		target := rng.Float64() * total
		var cum float64
		picked := len(data) - 1
		for i, d := range dists {
			cum += d
			if cum >= target {
				picked = i
				break
			}
		}
		centroids = append(centroids, cloneRow(data[picked]))
	}
	return centroids
}

// lloyd refines the given centroids until assignments stop changing or the
// iteration cap is hit.
func lloyd(data [][]float64, centroids [][]float64) kmeansFit {
	k := len(centroids)
	dims := len(data[0])
	labels := make([]int, len(data))

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, row := range data {
			label := nearestCentroid(row, centroids)
			if label != labels[i] {
				labels[i] = label
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, row := range data {
			floats.Add(sums[labels[i]], row)
			counts[labels[i]]++
		}
		for c := range centroids {
			// An emptied cluster keeps its previous centroid.
			if counts[c] == 0 {
				continue
			}
			floats.ScaleTo(centroids[c], 1/float64(counts[c]), sums[c])
		}
	}

	var inertia float64
	for i, row := range data {
		inertia += squaredDistance(row, centroids[labels[i]])
	}
	return kmeansFit{centroids: centroids, labels: labels, inertia: inertia}
}

func nearestCentroid(row []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(row, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func nearestSquaredDistance(row []float64, centroids [][]float64) float64 {
	best := math.Inf(1)
	for _, centroid := range centroids {
		if d := squaredDistance(row, centroid); d < best {
			best = d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for j := range a {
		d := a[j] - b[j]
		sum += d * d
	}
	return sum
}

func cloneRow(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	return out
}
