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
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/oracle"
	"github.com/AleutianAI/TimingOracle/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsObserver records run progress into telemetry.Metrics.
//
// # Description
//
// Every measurement increments QueriesTotal by verdict and records the
// measurement histogram. Completed rounds update RoundsTotal and the prefix
// length gauge. Terminal states increment RecoveriesTotal by outcome and
// record the run duration; an aborted run also counts one query error
// classified by kind.
//
// # Thread Safety
//
// Safe for concurrent use by several runs.
type MetricsObserver struct {
	metrics *telemetry.Metrics

	mu     sync.Mutex
	starts map[string]time.Time
}

// NewMetricsObserver creates an observer writing to m.
func NewMetricsObserver(m *telemetry.Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m, starts: make(map[string]time.Time)}
}

// OnStateChange implements Observer.
func (o *MetricsObserver) OnStateChange(ctx context.Context, ev StateChange) {
	if ev.From == StateIdle && ev.To == StateIdle {
		o.mu.Lock()
		o.starts[ev.RunID] = time.Now()
		o.mu.Unlock()
		o.metrics.PrefixLength.Record(ctx, 0)
		return
	}
	if !ev.To.IsTerminal() {
		return
	}

	outcome := metric.WithAttributes(attribute.String("outcome", ev.To.String()))
	o.metrics.RecoveriesTotal.Add(ctx, 1, outcome)

	o.mu.Lock()
	start, ok := o.starts[ev.RunID]
	delete(o.starts, ev.RunID)
	o.mu.Unlock()
	if ok {
		o.metrics.RecoveryDuration.Record(ctx, time.Since(start).Seconds(), outcome)
	}

	if ev.To == StateAborted {
		o.metrics.QueryErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", ErrorKind(ev.Err))))
	}
}

// OnMeasurement implements Observer.
func (o *MetricsObserver) OnMeasurement(ctx context.Context, m Measurement) {
	verdict := metric.WithAttributes(attribute.String("verdict", m.Result.Verdict.String()))
	o.metrics.QueriesTotal.Add(ctx, 1, verdict)
	if !m.Result.IsAccepted() {
		o.metrics.Measurement.Record(ctx, m.Result.Measurement)
	}
}

// OnRound implements Observer.
func (o *MetricsObserver) OnRound(ctx context.Context, r Round) {
	o.metrics.RoundsTotal.Add(ctx, 1)
	o.metrics.PrefixLength.Record(ctx, int64(r.Position+1))
}

// ErrorKind classifies a run error for metrics and exit reporting.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, oracle.ErrOracleUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, oracle.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrRecoveryFailed):
		return "recovery_failed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "other"
	}
}

var _ Observer = (*MetricsObserver)(nil)
