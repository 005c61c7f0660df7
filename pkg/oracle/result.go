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
	"fmt"
)

// Verdict is the tag of a Result.
type Verdict int

const (
	// VerdictRejected means the device reported a wrong password.
	VerdictRejected Verdict = iota

	// VerdictAccepted means the device reported the password as correct.
	VerdictAccepted
)

// String returns "accepted" or "rejected".
func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// Result is the outcome of one oracle query.
//
// # Description
//
// A Rejected result carries the measured processing time in calibrated
// units. An Accepted result may also carry a measurement when the oracle
// captured one, but callers must not rely on it: acceptance ends recovery.
type Result struct {
	// Verdict tags the result.
	Verdict Verdict

	// Measurement is the elapsed processing time for this query.
	Measurement float64
}

// Accepted returns an accepted result.
func Accepted() Result {
	return Result{Verdict: VerdictAccepted}
}

// Rejected returns a rejected result with the given measurement.
func Rejected(measurement float64) Result {
	return Result{Verdict: VerdictRejected, Measurement: measurement}
}

// IsAccepted reports whether the device accepted the candidate.
func (r Result) IsAccepted() bool {
	return r.Verdict == VerdictAccepted
}

// String formats the result for logs.
func (r Result) String() string {
	if r.IsAccepted() {
		return "Accepted"
	}
	return fmt.Sprintf("Rejected(%.3f)", r.Measurement)
}

// Oracle answers candidate queries against the secret-comparison target.
//
// # Description
//
// Implementations must complete one query fully, including any capture
// cycle on the measurement side, before returning. Callers issue queries
// strictly sequentially; implementations backed by a single physical
// instrument are not required to be safe for concurrent use.
type Oracle interface {
	// Query submits candidate and reports the outcome.
	Query(ctx context.Context, candidate string) (Result, error)
}

// Func adapts an ordinary function to the Oracle interface.
type Func func(ctx context.Context, candidate string) (Result, error)

// Query calls f(ctx, candidate).
func (f Func) Query(ctx context.Context, candidate string) (Result, error) {
	return f(ctx, candidate)
}

var _ Oracle = Func(nil)
