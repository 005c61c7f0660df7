// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cracker recovers a fixed-length secret from a prefix-timing leak.
//
// The target compares a candidate with its secret left to right and stops at
// the first mismatch, so the time it spends grows with the number of
// correctly matched leading symbols. Recover extends a confirmed prefix one
// symbol per round: it tries every alphabet symbol at the next position,
// keeps the one the oracle measured as slowest, and stops as soon as the
// oracle accepts a candidate.
//
// # Rounds
//
// Round k starts with a k-symbol prefix. Each symbol is queried as many times
// as the sampling Policy asks for and the samples are reduced to one score.
// The symbol with the strictly greatest score wins; exact ties go to the
// symbol that comes first in the alphabet. In the worst case a run issues
// length * len(alphabet) * samples queries.
//
// # States
//
//	Idle ─► Sampling(i) ─► Scoring(i) ─► Extending(i) ─┐
//	             ▲                                     │
//	             └─────────────── i+1 ─────────────────┘
//
//	Sampling ─[Accepted]─► Recovered
//	Extending(length-1) ─► Exhausted
//	any ─[oracle error, cancellation]─► Aborted
//
// # Usage
//
//	secret, err := cracker.Recover(ctx, cracker.Digits(), 6, o)
//	if errors.Is(err, cracker.ErrRecoveryFailed) {
//	    // the timing signal was too weak; recalibrate and retry
//	}
package cracker
