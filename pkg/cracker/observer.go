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

	"github.com/AleutianAI/TimingOracle/pkg/oracle"
)

// =============================================================================
// Events
// =============================================================================

// StateChange is emitted on every state transition. The start of a run is
// reported as Idle to Idle with Position -1.
type StateChange struct {
	RunID    string
	From, To State

	// Position is the index being worked on, or -1 before the first round.
	Position int

	// Prefix is the confirmed prefix at the time of the transition.
	Prefix Candidate

	// Err is set when To is StateAborted or StateExhausted.
	Err error
}

// Measurement is one oracle query and its result.
type Measurement struct {
	RunID    string
	Position int
	Symbol   rune

	// Trial is the exact string sent to the oracle, padding included.
	Trial string

	// Sample is the index of this query among the symbol's samples.
	Sample int

	Result oracle.Result
}

// SymbolScore is the reduced score of one symbol in a round.
type SymbolScore struct {
	Symbol   rune
	Score    float64
	Samples  []float64
	Accepted bool
}

// Round is a completed position.
type Round struct {
	RunID    string
	Position int

	// Scores holds one entry per queried symbol, in alphabet order. A round
	// that ended in acceptance stops at the accepted symbol.
	Scores []SymbolScore

	Selected      rune
	SelectedScore float64
	Accepted      bool

	// Queries is the number of oracle queries issued in this round.
	Queries int
}

// =============================================================================
// Observer
// =============================================================================

// Observer receives progress events from a run.
//
// # Description
//
// Callbacks are invoked synchronously from the run's goroutine, so they
// should return quickly. They cannot fail the run; an observer that does
// I/O handles its own errors.
type Observer interface {
	OnStateChange(ctx context.Context, ev StateChange)
	OnMeasurement(ctx context.Context, m Measurement)
	OnRound(ctx context.Context, r Round)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) OnStateChange(context.Context, StateChange) {}
func (NopObserver) OnMeasurement(context.Context, Measurement) {}
func (NopObserver) OnRound(context.Context, Round)             {}

// MultiObserver fans events out to every non-nil observer, in order.
func MultiObserver(observers ...Observer) Observer {
	var out multiObserver
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return NopObserver{}
	case 1:
		return out[0]
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) OnStateChange(ctx context.Context, ev StateChange) {
	for _, o := range m {
		o.OnStateChange(ctx, ev)
	}
}

func (m multiObserver) OnMeasurement(ctx context.Context, ms Measurement) {
	for _, o := range m {
		o.OnMeasurement(ctx, ms)
	}
}

func (m multiObserver) OnRound(ctx context.Context, r Round) {
	for _, o := range m {
		o.OnRound(ctx, r)
	}
}
