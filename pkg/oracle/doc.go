// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle defines the timing oracle capability consumed by the cracker
// and the hardware-backed implementation built from a comparison target and a
// capture instrument.
//
// # Query Contract
//
// An Oracle answers one question per call: does this candidate open the lock,
// and if not, how long did the device spend rejecting it? The answer is a
// Result, either Accepted or Rejected carrying a non-negative measurement.
//
// # TimingOracle
//
// TimingOracle performs a query as two concurrent legs:
//
//	capture leg:  Arm ──► wait WAIT ──► (armed) ──► wait STOP ──► ReadSamples ──► Measure
//	request leg:              (armed) ──► Exchange(candidate) ──► response line
//
// The request leg never transmits before the capture leg has observed the
// trigger in WAIT, and the measurement is only consumed after the capture has
// stopped. Either leg failing cancels the other.
//
// # Errors
//
// Instrument or target timeouts surface as *UnavailableError, matching
// ErrOracleUnavailable. A response line that is neither literal surfaces as
// *MalformedResponseError, matching ErrMalformedResponse. Neither is retried.
package oracle
