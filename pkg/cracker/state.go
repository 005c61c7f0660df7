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

import "fmt"

// State is the phase of a recovery run.
type State int

const (
	// StateIdle is the state before the first query.
	StateIdle State = iota

	// StateSampling means the symbols of the current position are being queried.
	StateSampling

	// StateScoring means all symbols have scores and the winner is being chosen.
	StateScoring

	// StateExtending means the winner is being appended to the prefix.
	StateExtending

	// StateRecovered is terminal: the oracle accepted a candidate.
	StateRecovered

	// StateExhausted is terminal: every position was extended without acceptance.
	StateExhausted

	// StateAborted is terminal: an oracle error or cancellation ended the run.
	StateAborted
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateSampling:  "sampling",
	StateScoring:   "scoring",
	StateExtending: "extending",
	StateRecovered: "recovered",
	StateExhausted: "exhausted",
	StateAborted:   "aborted",
}

// String returns the lower-case state name.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports whether no further transitions follow s.
func (s State) IsTerminal() bool {
	return s == StateRecovered || s == StateExhausted || s == StateAborted
}
