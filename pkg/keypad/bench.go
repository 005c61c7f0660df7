// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package keypad

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/instrument"
	"github.com/AleutianAI/TimingOracle/pkg/oracle"
)

// ErrNoCapture is returned by ReadSamples before a capture has stopped.
var ErrNoCapture = errors.New("keypad bench: no completed capture")

// BenchConfig shapes the simulated capture.
type BenchConfig struct {
	// Window is the capture length in samples. Default: 1200.
	Window int

	// PreTrigger is the number of low samples before the pulse. Default: 16.
	PreTrigger int

	// High and Low are the raw sample values of the GPIO levels.
	// Defaults: 200 and 20.
	High, Low byte

	// Jitter is the standard deviation of Gaussian noise added to the pulse
	// width, in samples. Zero gives a noiseless bench.
	Jitter float64

	// Seed makes jitter reproducible.
	Seed uint64

	// Latency delays each response line.
	Latency time.Duration

	// HangCapture keeps the trigger in WAIT forever, as a scope that lost
	// its probe would.
	HangCapture bool
}

func (c BenchConfig) withDefaults() BenchConfig {
	if c.Window <= 0 {
		c.Window = 1200
	}
	if c.PreTrigger <= 0 {
		c.PreTrigger = 16
	}
	if c.High == 0 {
		c.High = 200
	}
	if c.Low == 0 {
		c.Low = 20
	}
	return c
}

// Bench is the simulated device under test plus the scope watching it.
//
// # Description
//
// Bench implements oracle.Target and instrument.Instrument over one shared
// trigger state. Arm puts the trigger in WAIT; an Exchange while armed
// renders the pulse into the capture buffer and moves the trigger to STOP.
// An Exchange while the trigger is not armed is answered but not captured.
//
// # Thread Safety
//
// Safe for concurrent use; the oracle polls Status from one goroutine while
// another calls Exchange.
type Bench struct {
	lock *Lock
	cfg  BenchConfig

	mu         sync.Mutex
	rng        *rand.Rand
	status     instrument.Status
	samples    []byte
	configured []string
	exchanges  int
	captures   int
}

// NewBench creates a bench around lock.
func NewBench(lock *Lock, cfg BenchConfig) *Bench {
	cfg = cfg.withDefaults()
	return &Bench{
		lock:   lock,
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		status: instrument.StatusStop,
	}
}

// Calibration returns the calibration under which one measurement unit is
// one sample of pulse width.
func (b *Bench) Calibration() oracle.Calibration {
	return oracle.Calibration{
		Threshold: b.cfg.Low + (b.cfg.High-b.cfg.Low)/2,
		Divisor:   1,
	}
}

// Configure records the setup commands.
func (b *Bench) Configure(_ context.Context, commands ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configured = append(b.configured, commands...)
	return nil
}

// Arm starts a single capture.
func (b *Bench) Arm(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = instrument.StatusWait
	b.samples = nil
	return nil
}

// Status reports the trigger state.
func (b *Bench) Status(ctx context.Context) (instrument.Status, error) {
	if err := ctx.Err(); err != nil {
		return instrument.StatusUnknown, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, nil
}

// ReadSamples returns a copy of the completed capture.
func (b *Bench) ReadSamples(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != instrument.StatusStop || b.samples == nil {
		return nil, ErrNoCapture
	}
	out := make([]byte, len(b.samples))
	copy(out, b.samples)
	return out, nil
}

// Exchange submits a candidate line and returns the firmware's reply.
func (b *Bench) Exchange(ctx context.Context, line string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	accepted, ticks := b.lock.Check(line)

	b.mu.Lock()
	b.exchanges++
	if b.status == instrument.StatusWait && !b.cfg.HangCapture {
		b.samples = b.render(ticks)
		b.status = instrument.StatusStop
		b.captures++
	}
	b.mu.Unlock()

	if b.cfg.Latency > 0 {
		timer := time.NewTimer(b.cfg.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	if accepted {
		return oracle.AcceptedLine, nil
	}
	return oracle.RejectedLine, nil
}

// render draws the GPIO pulse. Callers hold b.mu.
func (b *Bench) render(ticks int) []byte {
	width := float64(ticks)
	if b.cfg.Jitter > 0 {
		width += b.rng.NormFloat64() * b.cfg.Jitter
	}
	w := int(math.Round(width))
	w = max(0, min(w, b.cfg.Window-b.cfg.PreTrigger))

	buf := make([]byte, b.cfg.Window)
	for i := range buf {
		buf[i] = b.cfg.Low
	}
	for i := b.cfg.PreTrigger; i < b.cfg.PreTrigger+w; i++ {
		buf[i] = b.cfg.High
	}
	return buf
}

// Stats reports bench counters.
func (b *Bench) Stats() BenchStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BenchStats{
		Exchanges:  b.exchanges,
		Captures:   b.captures,
		Configured: append([]string(nil), b.configured...),
	}
}

// BenchStats is a snapshot of bench activity.
type BenchStats struct {
	Exchanges  int
	Captures   int
	Configured []string
}

// String summarises the stats.
func (s BenchStats) String() string {
	return fmt.Sprintf("exchanges=%d captures=%d", s.Exchanges, s.Captures)
}

var (
	_ instrument.Instrument = (*Bench)(nil)
	_ oracle.Target         = (*Bench)(nil)
)
