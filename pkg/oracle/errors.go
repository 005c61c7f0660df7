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
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrOracleUnavailable is matched by every error caused by the instrument
	// or the target not responding within its bounded wait.
	ErrOracleUnavailable = errors.New("timing oracle unavailable")

	// ErrMalformedResponse is matched when the target answers with a line
	// that is neither accepted nor rejected literal.
	ErrMalformedResponse = errors.New("malformed response")
)

// =============================================================================
// UnavailableError
// =============================================================================

// UnavailableError reports which stage of a query stopped responding.
//
// # Description
//
// Stage is one of the Stage* constants. Timeout is the bound that elapsed,
// zero when the failure was not a timeout (for example a closed connection).
// Err is the underlying cause and may be nil.
//
// # Example
//
//	var unavailable *oracle.UnavailableError
//	if errors.As(err, &unavailable) {
//	    fmt.Println(unavailable.Stage) // "capture"
//	}
type UnavailableError struct {
	// Stage names the step that failed.
	Stage string

	// Timeout is the bound that elapsed, or zero.
	Timeout time.Duration

	// Err is the underlying cause.
	Err error
}

// Query stages reported by UnavailableError.
const (
	StageArm      = "arm"
	StageCapture  = "capture"
	StageReadout  = "readout"
	StageResponse = "response"
	StagePacing   = "pacing"
)

// Error returns a formatted message naming the stage.
func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("%s: %s stage", ErrOracleUnavailable, e.Stage)
	if e.Timeout > 0 {
		msg += fmt.Sprintf(" timed out after %s", e.Timeout)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrOracleUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrOracleUnavailable
}

// =============================================================================
// MalformedResponseError
// =============================================================================

// MalformedResponseError carries the unexpected response line.
type MalformedResponseError struct {
	// Line is the response with surrounding whitespace removed.
	Line string
}

// Error returns a formatted message quoting the line.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMalformedResponse, e.Line)
}

// Is reports whether target is ErrMalformedResponse.
func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}
