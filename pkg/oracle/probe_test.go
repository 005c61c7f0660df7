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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	values := []float64{4, 2, 8, 6}
	i := 0
	o := Func(func(context.Context, string) (Result, error) {
		v := values[i]
		i++
		return Rejected(v), nil
	})

	stats, err := Probe(context.Background(), o, "4", 4)
	require.NoError(t, err)

	assert.Equal(t, "4", stats.Candidate)
	assert.Equal(t, 4, stats.Count())
	assert.Equal(t, 4, stats.Rejected)
	assert.Equal(t, values, stats.Measurements)
	assert.Equal(t, 2.0, stats.Min)
	assert.Equal(t, 8.0, stats.Max)
	assert.Equal(t, 5.0, stats.Mean)
	assert.Equal(t, 5.0, stats.Median)
	assert.InDelta(t, 2.2360679, stats.StdDev, 1e-6)
}

func TestProbe_OddCount(t *testing.T) {
	values := []float64{9, 1, 3}
	i := 0
	o := Func(func(context.Context, string) (Result, error) {
		v := values[i]
		i++
		return Rejected(v), nil
	})

	stats, err := Probe(context.Background(), o, "7", 3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 9.0, stats.Max)
	assert.Equal(t, 3.0, stats.Median)
	assert.Equal(t, []float64{9, 1, 3}, stats.Measurements, "summary must not reorder the recorded measurements")
	assert.InDelta(t, 13.0/3, stats.Mean, 1e-9)
	assert.InDelta(t, 3.3993463, stats.StdDev, 1e-6)
}

func TestProbe_CountsAccepted(t *testing.T) {
	o := Func(func(context.Context, string) (Result, error) { return Accepted(), nil })

	stats, err := Probe(context.Background(), o, "424344", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Accepted)
	assert.Zero(t, stats.Rejected)
}

func TestProbe_StopsAtError(t *testing.T) {
	calls := 0
	boom := &UnavailableError{Stage: StageCapture}
	o := Func(func(context.Context, string) (Result, error) {
		calls++
		if calls == 3 {
			return Result{}, boom
		}
		return Rejected(float64(calls)), nil
	})

	stats, err := Probe(context.Background(), o, "1", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOracleUnavailable))
	assert.ErrorContains(t, err, "probe query 3")
	assert.Equal(t, 2, stats.Count())
	assert.Equal(t, 1.5, stats.Mean)
}

func TestProbe_Validation(t *testing.T) {
	_, err := Probe(context.Background(), nil, "1", 1)
	assert.Error(t, err)

	o := Func(func(context.Context, string) (Result, error) { return Rejected(1), nil })
	_, err = Probe(context.Background(), o, "1", 0)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := Probe(ctx, o, "1", 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Count())
}
