// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ProbeStats summarises repeated queries of one candidate.
type ProbeStats struct {
	Candidate    string
	Accepted     int
	Rejected     int
	Measurements []float64

	Min, Max, Mean, Median, StdDev float64
}

// Count returns the number of completed queries.
func (s ProbeStats) Count() int {
	return s.Accepted + s.Rejected
}

// Probe queries candidate repeat times and summarises the measurements.
//
// # Description
//
// Probe is a calibration helper: comparing the spread for a wrong first
// symbol against a right one shows whether the threshold and divisor
// separate the two. It stops at the first error and returns the statistics
// of the queries completed so far along with it.
//
// # Inputs
//
//   - ctx: Cancels between and during queries
//   - o: Oracle to query
//   - candidate: Exact string to send
//   - repeat: Number of queries, at least 1
func Probe(ctx context.Context, o Oracle, candidate string, repeat int) (ProbeStats, error) {
	stats := ProbeStats{Candidate: candidate}
	if o == nil {
		return stats, errors.New("probe: oracle is required")
	}
	if repeat < 1 {
		return stats, fmt.Errorf("probe: repeat must be at least 1, got %d", repeat)
	}

	var err error
	for i := 0; i < repeat; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		var res Result
		res, err = o.Query(ctx, candidate)
		if err != nil {
			err = fmt.Errorf("probe query %d: %w", i+1, err)
			break
		}
		if res.IsAccepted() {
			stats.Accepted++
		} else {
			stats.Rejected++
		}
		stats.Measurements = append(stats.Measurements, res.Measurement)
	}
	stats.summarise()
	return stats, err
}

func (s *ProbeStats) summarise() {
	n := len(s.Measurements)
	if n == 0 {
		return
	}
	sorted := slices.Clone(s.Measurements)
	slices.Sort(sorted)

	s.Min, s.Max = floats.Min(sorted), floats.Max(sorted)
	s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if n%2 == 0 {
		s.Median = (s.Median + sorted[n/2]) / 2
	}
	s.Mean, s.StdDev = stat.PopMeanStdDev(sorted, nil)
}
