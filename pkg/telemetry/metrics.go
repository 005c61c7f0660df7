// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains the pre-defined recovery metrics.
//
// Description:
//
//	Counters and histograms for oracle queries, rounds and whole runs. All
//	metrics use the "timingoracle_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Query Metrics ---

	// QueriesTotal counts oracle queries by verdict.
	QueriesTotal metric.Int64Counter

	// QueryErrorsTotal counts failed queries by error kind.
	QueryErrorsTotal metric.Int64Counter

	// Measurement records rejected-query measurements in calibrated units.
	Measurement metric.Float64Histogram

	// --- Run Metrics ---

	// RoundsTotal counts completed positions.
	RoundsTotal metric.Int64Counter

	// PrefixLength reports the confirmed prefix length of the current run.
	PrefixLength metric.Int64Gauge

	// RecoveriesTotal counts finished runs by terminal state.
	RecoveriesTotal metric.Int64Counter

	// RecoveryDuration records run duration in seconds.
	RecoveryDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Description:
//
//	Registers all pre-defined metrics with the provided meter.
//	Returns an error if any metric registration fails.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all instruments initialized.
//	error - Non-nil if metric registration fails.
//
// Example:
//
//	metrics, err := telemetry.NewMetrics(otel.Meter("timingoracle"))
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.QueriesTotal.Add(ctx, 1, ...)
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- Query Metrics ---
	m.QueriesTotal, err = meter.Int64Counter(
		"timingoracle_queries_total",
		metric.WithDescription("Total oracle queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create queries_total: %w", err)
	}

	m.QueryErrorsTotal, err = meter.Int64Counter(
		"timingoracle_query_errors_total",
		metric.WithDescription("Total failed oracle queries by error kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create query_errors_total: %w", err)
	}

	m.Measurement, err = meter.Float64Histogram(
		"timingoracle_measurement",
		metric.WithDescription("Calibrated processing-time measurement per query"),
		metric.WithUnit("{unit}"),
		metric.WithExplicitBucketBoundaries(10, 25, 50, 75, 100, 150, 200, 300, 500, 1000),
	)
	if err != nil {
		return nil, fmt.Errorf("create measurement: %w", err)
	}

	// --- Run Metrics ---
	m.RoundsTotal, err = meter.Int64Counter(
		"timingoracle_rounds_total",
		metric.WithDescription("Total completed rounds"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rounds_total: %w", err)
	}

	m.PrefixLength, err = meter.Int64Gauge(
		"timingoracle_prefix_length",
		metric.WithDescription("Confirmed prefix length of the current run"),
		metric.WithUnit("{symbol}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create prefix_length: %w", err)
	}

	m.RecoveriesTotal, err = meter.Int64Counter(
		"timingoracle_recoveries_total",
		metric.WithDescription("Total finished recovery runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create recoveries_total: %w", err)
	}

	m.RecoveryDuration, err = meter.Float64Histogram(
		"timingoracle_recovery_duration_seconds",
		metric.WithDescription("Recovery run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, fmt.Errorf("create recovery_duration: %w", err)
	}

	return m, nil
}
