// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package instrument defines the capture-instrument capability used to time
// the device under test.
//
// The capability is deliberately small: configure, arm a single capture,
// poll the trigger status and read the sample buffer. Vendor adapters live
// in subpackages (see scpi) and can be swapped without touching the oracle.
package instrument

import (
	"context"
	"strings"
)

// =============================================================================
// Trigger Status
// =============================================================================

// Status is the trigger state reported by an instrument.
//
// # States
//
//	         Arm
//	(any) ────────► WAIT ──[edge]──► TD ──[window full]──► STOP
//
// Only WAIT and STOP drive the query protocol. The remaining states are
// reported so that logs show what the instrument was doing when a wait
// timed out.
type Status int

const (
	// StatusUnknown is any reply the adapter could not map.
	StatusUnknown Status = iota

	// StatusWait means the trigger is armed and waiting for an edge.
	StatusWait

	// StatusStop means the single capture has completed.
	StatusStop

	// StatusRun means the instrument is free-running.
	StatusRun

	// StatusTriggered means an edge was seen and the window is filling.
	StatusTriggered

	// StatusAuto means the instrument is in auto-trigger mode.
	StatusAuto
)

// String returns the vendor-style status token.
func (s Status) String() string {
	switch s {
	case StatusWait:
		return "WAIT"
	case StatusStop:
		return "STOP"
	case StatusRun:
		return "RUN"
	case StatusTriggered:
		return "TD"
	case StatusAuto:
		return "AUTO"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus maps a status reply to a Status.
//
// Surrounding whitespace is ignored and matching is case-insensitive.
// Unrecognised replies map to StatusUnknown.
func ParseStatus(reply string) Status {
	switch strings.ToUpper(strings.TrimSpace(reply)) {
	case "WAIT":
		return StatusWait
	case "STOP":
		return StatusStop
	case "RUN":
		return StatusRun
	case "TD", "TRIG", "TRIGGERED":
		return StatusTriggered
	case "AUTO":
		return StatusAuto
	default:
		return StatusUnknown
	}
}

// =============================================================================
// Instrument Interface
// =============================================================================

// Instrument is the capture capability.
//
// # Description
//
// An Instrument is a single stateful resource: one trigger, one capture
// buffer. Callers must not interleave captures from different queries.
//
// # Thread Safety
//
// Status may be polled from one goroutine while another goroutine talks to
// the device under test. Implementations must tolerate that, but need not
// support concurrent Arm or ReadSamples calls.
type Instrument interface {
	// Configure sends textual setup commands in order.
	Configure(ctx context.Context, commands ...string) error

	// Arm starts a single capture.
	Arm(ctx context.Context) error

	// Status polls the trigger state.
	Status(ctx context.Context) (Status, error)

	// ReadSamples returns the raw sample buffer of the last capture.
	// Only valid once Status has reported StatusStop.
	ReadSamples(ctx context.Context) ([]byte, error)
}
