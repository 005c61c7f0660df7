// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cracker

import (
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Sampling policy names accepted by ParsePolicy.
const (
	PolicySingle = "single"
	PolicyMean   = "mean"
	PolicyMedian = "median"
)

// Policy decides how many times each symbol is queried and how the
// measurements are reduced to one score.
//
// # Description
//
// Reduce is called with exactly Samples() measurements, in query order.
// Implementations must be deterministic: equal inputs give equal scores, so
// that the alphabet-order tie-break stays reproducible.
type Policy interface {
	// Name identifies the policy in logs and reports.
	Name() string

	// Samples is the number of queries per symbol. Always at least 1.
	Samples() int

	// Reduce turns the per-symbol measurements into a score.
	Reduce(samples []float64) float64
}

// Single queries each symbol once and uses the measurement as its score.
func Single() Policy {
	return singlePolicy{}
}

// Mean queries each symbol n times and scores it by the arithmetic mean.
// n below 1 is treated as 1.
func Mean(n int) Policy {
	return meanPolicy{n: max(n, 1)}
}

// Median queries each symbol n times and scores it by the median. For even
// n the two middle values are averaged. n below 1 is treated as 1.
func Median(n int) Policy {
	return medianPolicy{n: max(n, 1)}
}

// ParsePolicy returns the policy called name with the given sample count.
//
// # Inputs
//
//   - name: "single", "mean" or "median" (case-insensitive); empty means single
//   - samples: Queries per symbol; ignored for single, must be >= 1 otherwise
//
// # Outputs
//
//   - Policy: The configured policy
//   - error: ErrInvalidInput for an unknown name or a bad sample count
func ParsePolicy(name string, samples int) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicySingle:
		return Single(), nil
	case PolicyMean:
		if samples < 1 {
			return nil, fmt.Errorf("%w: mean sampling needs at least 1 sample, got %d", ErrInvalidInput, samples)
		}
		return Mean(samples), nil
	case PolicyMedian:
		if samples < 1 {
			return nil, fmt.Errorf("%w: median sampling needs at least 1 sample, got %d", ErrInvalidInput, samples)
		}
		return Median(samples), nil
	default:
		return nil, fmt.Errorf("%w: unknown sampling policy %q", ErrInvalidInput, name)
	}
}

type singlePolicy struct{}

func (singlePolicy) Name() string { return PolicySingle }
func (singlePolicy) Samples() int { return 1 }
func (singlePolicy) Reduce(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[0]
}

type meanPolicy struct{ n int }

func (p meanPolicy) Name() string { return PolicyMean }
func (p meanPolicy) Samples() int { return p.n }
func (p meanPolicy) Reduce(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return stat.Mean(samples, nil)
}

type medianPolicy struct{ n int }

func (p medianPolicy) Name() string { return PolicyMedian }
func (p medianPolicy) Samples() int { return p.n }
func (p medianPolicy) Reduce(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	return median(sorted)
}

// median averages the two middle order statistics of sorted. The lower one
// is the empirical 0.5 quantile.
func median(sorted []float64) float64 {
	lo := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if len(sorted)%2 == 1 {
		return lo
	}
	return (lo + sorted[len(sorted)/2]) / 2
}
