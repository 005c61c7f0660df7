// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink exports per-query measurements for offline analysis.
//
// A Sink receives every oracle measurement of a run. The Observer adapter
// plugs a Sink into a cracker run: measurements are recorded as they
// arrive, buffered writes are flushed at the end of each round and at the
// end of the run. Sink failures are logged and never stop a run.
package sink

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/cracker"
	"github.com/AleutianAI/TimingOracle/pkg/logging"
)

// FlushTimeout bounds each flush the Observer issues. Flushes do not
// inherit cancellation from the run, so the measurements of an interrupted
// round still reach the sink.
const FlushTimeout = 5 * time.Second

// Sample is one exported measurement.
type Sample struct {
	RunID       string
	Position    int
	Symbol      string
	Trial       string
	Sample      int
	Measurement float64
	Accepted    bool
	Time        time.Time
}

// Sink stores samples.
type Sink interface {
	// Record queues or writes one sample.
	Record(ctx context.Context, s Sample) error

	// Flush writes any queued samples.
	Flush(ctx context.Context) error

	// Close flushes and releases resources.
	Close(ctx context.Context) error
}

// =============================================================================
// Nop
// =============================================================================

// Nop discards samples.
type Nop struct{}

func (Nop) Record(context.Context, Sample) error { return nil }
func (Nop) Flush(context.Context) error          { return nil }
func (Nop) Close(context.Context) error          { return nil }

// =============================================================================
// Memory
// =============================================================================

// Memory keeps samples in memory. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	samples []Sample
	flushes int
	closed  bool
}

// Record appends s.
func (m *Memory) Record(_ context.Context, s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	return nil
}

// Flush counts the call.
func (m *Memory) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Close marks the sink closed.
func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Samples returns a copy of the recorded samples.
func (m *Memory) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.samples...)
}

// Flushes returns how many times Flush was called.
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// =============================================================================
// Observer
// =============================================================================

// Observer feeds a run's measurements into a Sink.
type Observer struct {
	sink   Sink
	logger *logging.Logger
	now    func() time.Time
}

// NewObserver creates an observer writing to s. A nil logger discards
// sink warnings.
func NewObserver(s Sink, logger *logging.Logger) *Observer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Observer{sink: s, logger: logger, now: time.Now}
}

// OnStateChange flushes when the run ends.
func (o *Observer) OnStateChange(ctx context.Context, ev cracker.StateChange) {
	if ev.To.IsTerminal() {
		o.flush(ctx, ev.RunID)
	}
}

// OnMeasurement records the measurement.
func (o *Observer) OnMeasurement(ctx context.Context, m cracker.Measurement) {
	err := o.sink.Record(ctx, Sample{
		RunID:       m.RunID,
		Position:    m.Position,
		Symbol:      string(m.Symbol),
		Trial:       m.Trial,
		Sample:      m.Sample,
		Measurement: m.Result.Measurement,
		Accepted:    m.Result.IsAccepted(),
		Time:        o.now(),
	})
	if err != nil {
		o.logger.Warn("measurement sink record failed", "run_id", m.RunID, "error", err)
	}
}

// OnRound flushes the round's measurements.
func (o *Observer) OnRound(ctx context.Context, r cracker.Round) {
	o.flush(ctx, r.RunID)
}

func (o *Observer) flush(ctx context.Context, runID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FlushTimeout)
	defer cancel()

	if err := o.sink.Flush(ctx); err != nil {
		o.logger.Warn("measurement sink flush failed", "run_id", runID, "error", err)
	}
}

var _ cracker.Observer = (*Observer)(nil)
