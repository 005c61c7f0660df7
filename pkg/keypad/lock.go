// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package keypad simulates the keypad lock bench: a microcontroller whose
// password check exits on the first mismatching symbol, and the scope probe
// on the GPIO it raises while checking.
//
// The simulator lets the full query path (trigger arming, line exchange,
// capture readout, calibration) run without hardware, for the `simulate`
// command and for tests.
package keypad

import "errors"

// Lock is the simulated password check.
//
// # Description
//
// Check compares the candidate with the secret left to right and stops at
// the first mismatch, so its cost grows linearly with the number of
// correctly matched leading symbols:
//
//	cost = BaseTicks + TicksPerSymbol * matched
//
// With AcceptPrefix set, the firmware only compares as many symbols as it
// received and accepts any non-empty prefix of the secret. That models the
// demo build where the keypad buffer is checked as it fills.
type Lock struct {
	secret         string
	baseTicks      int
	ticksPerSymbol int
	acceptPrefix   bool
}

// LockOption customises a Lock.
type LockOption func(*Lock)

// WithTicks sets the fixed and per-matched-symbol cost.
func WithTicks(base, perSymbol int) LockOption {
	return func(l *Lock) {
		l.baseTicks = base
		l.ticksPerSymbol = perSymbol
	}
}

// WithAcceptPrefix enables demo-mode prefix acceptance.
func WithAcceptPrefix(enabled bool) LockOption {
	return func(l *Lock) { l.acceptPrefix = enabled }
}

// Default costs, in capture samples.
const (
	DefaultBaseTicks      = 40
	DefaultTicksPerSymbol = 25
)

// NewLock creates a lock guarding secret.
func NewLock(secret string, opts ...LockOption) (*Lock, error) {
	if secret == "" {
		return nil, errors.New("keypad: secret must not be empty")
	}
	l := &Lock{
		secret:         secret,
		baseTicks:      DefaultBaseTicks,
		ticksPerSymbol: DefaultTicksPerSymbol,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.baseTicks < 0 || l.ticksPerSymbol <= 0 {
		return nil, errors.New("keypad: ticks must be non-negative and per-symbol ticks positive")
	}
	return l, nil
}

// Check runs the comparison and reports acceptance and cost in ticks.
func (l *Lock) Check(candidate string) (accepted bool, ticks int) {
	matched := MatchedPrefix(candidate, l.secret)
	ticks = l.baseTicks + l.ticksPerSymbol*matched

	if l.acceptPrefix {
		return candidate != "" && matched == len([]rune(candidate)), ticks
	}
	return candidate == l.secret, ticks
}

// SecretLength returns the number of symbols in the secret.
func (l *Lock) SecretLength() int {
	return len([]rune(l.secret))
}

// MatchedPrefix counts leading symbols shared by candidate and secret.
func MatchedPrefix(candidate, secret string) int {
	c, s := []rune(candidate), []rune(secret)
	n := 0
	for n < len(c) && n < len(s) && c[n] == s[n] {
		n++
	}
	return n
}
