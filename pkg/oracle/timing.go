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
	"strings"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/instrument"
	"github.com/AleutianAI/TimingOracle/pkg/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Response literals sent by the keypad firmware.
const (
	AcceptedLine = "Good password"
	RejectedLine = "Wrong password"
)

// Target is the line-oriented channel to the device under test.
//
// Exchange writes one line and returns exactly one response line without its
// terminator. It must honour ctx cancellation and deadlines.
type Target interface {
	Exchange(ctx context.Context, line string) (string, error)
}

// =============================================================================
// Configuration
// =============================================================================

// TimingConfig configures a TimingOracle.
//
// # Description
//
// Zero durations are replaced by the defaults from DefaultTimingConfig.
// MinQueryInterval of zero disables pacing.
type TimingConfig struct {
	// Calibration converts capture buffers into measurements.
	Calibration Calibration

	// ArmTimeout bounds the wait for the trigger to report WAIT after Arm.
	ArmTimeout time.Duration

	// CaptureTimeout bounds the wait for the trigger to report STOP.
	CaptureTimeout time.Duration

	// ResponseTimeout bounds the wait for the target's response line.
	ResponseTimeout time.Duration

	// PollInterval is the trigger status polling period.
	PollInterval time.Duration

	// MinQueryInterval is the minimum spacing between query starts, giving
	// the device time to settle.
	MinQueryInterval time.Duration
}

// DefaultTimingConfig returns bounds suited to a bench scope on a LAN link.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		Calibration:     DefaultCalibration(),
		ArmTimeout:      2 * time.Second,
		CaptureTimeout:  2 * time.Second,
		ResponseTimeout: 2 * time.Second,
		PollInterval:    5 * time.Millisecond,
	}
}

func (c TimingConfig) withDefaults() TimingConfig {
	def := DefaultTimingConfig()
	if c.Calibration == (Calibration{}) {
		c.Calibration = def.Calibration
	}
	if c.ArmTimeout <= 0 {
		c.ArmTimeout = def.ArmTimeout
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = def.CaptureTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = def.ResponseTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	return c
}

// =============================================================================
// TimingOracle
// =============================================================================

// TimingOracle measures the target's processing time with an instrument.
//
// # Description
//
// Each Query arms a single capture, transmits the candidate once the
// trigger is waiting, reads the response line and, after the capture has
// stopped, converts the buffer into a measurement.
//
// # Thread Safety
//
// Not safe for concurrent Query calls: the instrument has one trigger and one
// capture buffer.
//
// # Example
//
//	o, err := oracle.NewTimingOracle(serialTarget, scope, oracle.DefaultTimingConfig())
//	if err != nil {
//	    return err
//	}
//	res, err := o.Query(ctx, "424300")
type TimingOracle struct {
	target  Target
	inst    instrument.Instrument
	cfg     TimingConfig
	limiter *rate.Limiter
	logger  *logging.Logger
}

// TimingOption customises a TimingOracle.
type TimingOption func(*TimingOracle)

// WithLogger sets the oracle's logger.
func WithLogger(logger *logging.Logger) TimingOption {
	return func(o *TimingOracle) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewTimingOracle creates a TimingOracle.
//
// # Inputs
//
//   - target: Line channel to the device under test
//   - inst: Capture instrument observing the device
//   - cfg: Timeouts, calibration and pacing; zero fields take defaults
//
// # Outputs
//
//   - *TimingOracle: Ready to query
//   - error: Non-nil for nil collaborators or an invalid calibration
func NewTimingOracle(target Target, inst instrument.Instrument, cfg TimingConfig, opts ...TimingOption) (*TimingOracle, error) {
	if target == nil {
		return nil, errors.New("timing oracle: target is required")
	}
	if inst == nil {
		return nil, errors.New("timing oracle: instrument is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Calibration.Validate(); err != nil {
		return nil, fmt.Errorf("timing oracle: %w", err)
	}

	o := &TimingOracle{
		target: target,
		inst:   inst,
		cfg:    cfg,
		logger: logging.Discard(),
	}
	if cfg.MinQueryInterval > 0 {
		o.limiter = rate.NewLimiter(rate.Every(cfg.MinQueryInterval), 1)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the effective configuration.
func (o *TimingOracle) Config() TimingConfig {
	return o.cfg
}

// Query runs one capture-and-exchange cycle for candidate.
//
// # Outputs
//
//   - Result: Accepted or Rejected with the calibrated measurement
//   - error: *UnavailableError on timeouts and link failures,
//     *MalformedResponseError on an unexpected line, ctx.Err() when the
//     caller cancelled
func (o *TimingOracle) Query(ctx context.Context, candidate string) (Result, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Result{}, &UnavailableError{Stage: StagePacing, Err: err}
		}
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	armed := make(chan struct{})

	var (
		measurement float64
		response    string
	)

	// Capture leg.
	g.Go(func() error {
		if err := o.inst.Arm(gctx); err != nil {
			return o.stageErr(ctx, StageArm, 0, err)
		}
		if _, err := instrument.WaitForStatus(gctx, o.inst, instrument.StatusWait, o.cfg.ArmTimeout, o.cfg.PollInterval); err != nil {
			return o.stageErr(ctx, StageArm, o.cfg.ArmTimeout, err)
		}
		close(armed)

		last, err := instrument.WaitForStatus(gctx, o.inst, instrument.StatusStop, o.cfg.CaptureTimeout, o.cfg.PollInterval)
		if err != nil {
			o.logger.Debug("capture did not stop", "last_status", last.String())
			return o.stageErr(ctx, StageCapture, o.cfg.CaptureTimeout, err)
		}

		samples, err := o.inst.ReadSamples(gctx)
		if err != nil {
			return o.stageErr(ctx, StageReadout, 0, err)
		}
		measurement = o.cfg.Calibration.Measure(samples)
		return nil
	})

	// Request leg.
	g.Go(func() error {
		select {
		case <-armed:
		case <-gctx.Done():
			return gctx.Err()
		}

		rctx, cancel := context.WithTimeout(gctx, o.cfg.ResponseTimeout)
		defer cancel()

		line, err := o.target.Exchange(rctx, candidate)
		if errors.Is(err, ErrMalformedResponse) {
			return err
		}
		if err != nil {
			if errors.Is(rctx.Err(), context.DeadlineExceeded) && gctx.Err() == nil {
				return o.stageErr(ctx, StageResponse, o.cfg.ResponseTimeout, err)
			}
			return o.stageErr(ctx, StageResponse, 0, err)
		}
		response = line
		return nil
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res, err := parseResponse(response, measurement)
	o.logger.Debug("oracle query",
		"trial", candidate,
		"response", strings.TrimSpace(response),
		"measurement", measurement,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, err
}

// stageErr classifies a leg failure. Cancellation by the caller is returned
// as-is so that it never looks like an instrument fault.
func (o *TimingOracle) stageErr(parent context.Context, stage string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.Canceled) {
		// The other leg failed first; errgroup reports that error instead.
		return err
	}
	if !errors.Is(err, instrument.ErrWaitTimeout) && !errors.Is(err, context.DeadlineExceeded) {
		timeout = 0
	}
	return &UnavailableError{Stage: stage, Timeout: timeout, Err: err}
}

// parseResponse maps a response line to a Result.
func parseResponse(line string, measurement float64) (Result, error) {
	switch trimmed := strings.TrimSpace(line); trimmed {
	case AcceptedLine:
		return Result{Verdict: VerdictAccepted, Measurement: measurement}, nil
	case RejectedLine:
		return Rejected(measurement), nil
	default:
		return Result{}, &MalformedResponseError{Line: trimmed}
	}
}

var _ Oracle = (*TimingOracle)(nil)
