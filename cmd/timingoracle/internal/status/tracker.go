// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package status serves live progress of a recovery run over HTTP.
package status

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/cracker"
)

// RoundSummary is one completed position in a Snapshot.
type RoundSummary struct {
	Position int     `json:"position"`
	Symbol   string  `json:"symbol"`
	Score    float64 `json:"score"`
	Accepted bool    `json:"accepted"`
	Queries  int     `json:"queries"`
}

// Snapshot is the progress of the current or last run.
type Snapshot struct {
	RunID     string         `json:"run_id,omitempty"`
	State     string         `json:"state"`
	Length    int            `json:"length"`
	Position  int            `json:"position"`
	Prefix    string         `json:"prefix"`
	Queries   int            `json:"queries"`
	Rounds    []RoundSummary `json:"rounds"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	UpdatedAt time.Time      `json:"updated_at,omitzero"`
}

// Tracker keeps a Snapshot up to date from run events. It implements
// cracker.Observer.
//
// # Thread Safety
//
// Safe for concurrent use; the run writes while HTTP handlers read.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a tracker for secrets of length symbols.
func NewTracker(length int) *Tracker {
	return &Tracker{
		snap: Snapshot{State: cracker.StateIdle.String(), Length: length, Position: -1, Rounds: []RoundSummary{}},
		now:  time.Now,
	}
}

// OnStateChange records the new state and prefix. The Idle to Idle event
// that opens a run resets the snapshot.
func (t *Tracker) OnStateChange(_ context.Context, ev cracker.StateChange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if ev.From == cracker.StateIdle && ev.To == cracker.StateIdle {
		t.snap = Snapshot{
			RunID:     ev.RunID,
			Length:    t.snap.Length,
			Rounds:    []RoundSummary{},
			StartedAt: now,
		}
	}
	t.snap.State = ev.To.String()
	t.snap.Position = ev.Position
	t.snap.Prefix = ev.Prefix.String()
	if ev.Err != nil {
		t.snap.Error = ev.Err.Error()
	}
	t.snap.UpdatedAt = now
}

// OnMeasurement counts one oracle query.
func (t *Tracker) OnMeasurement(context.Context, cracker.Measurement) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Queries++
	t.snap.UpdatedAt = t.now()
}

// OnRound appends a summary of the finished position.
func (t *Tracker) OnRound(_ context.Context, r cracker.Round) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Rounds = append(t.snap.Rounds, RoundSummary{
		Position: r.Position,
		Symbol:   string(r.Selected),
		Score:    r.SelectedScore,
		Accepted: r.Accepted,
		Queries:  r.Queries,
	})
	t.snap.UpdatedAt = t.now()
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.snap
	s.Rounds = slices.Clone(t.snap.Rounds)
	return s
}

var _ cracker.Observer = (*Tracker)(nil)
