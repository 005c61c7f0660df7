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
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrInvalidInput is returned when Recover is called with an empty
	// alphabet, duplicate symbols, a non-positive length or a nil oracle.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRecoveryFailed is returned when every position has been extended
	// without the oracle ever accepting a candidate.
	ErrRecoveryFailed = errors.New("recovery failed: secret length reached without acceptance")
)

// Candidate is a sequence of alphabet symbols.
type Candidate string

// Len returns the number of symbols in c.
func (c Candidate) Len() int {
	return utf8.RuneCountInString(string(c))
}

// String returns c as a plain string.
func (c Candidate) String() string {
	return string(c)
}

// Alphabet is the ordered set of symbols tried at each position.
//
// Order matters: symbols are queried in order and exact score ties are
// broken in favour of the earlier symbol.
type Alphabet []rune

// DigitsSymbols is the default keypad alphabet.
const DigitsSymbols = "0123456789"

// Digits returns the decimal digit alphabet '0'..'9'.
func Digits() Alphabet {
	return Alphabet(DigitsSymbols)
}

// NewAlphabet builds an alphabet from the symbols of s, in order.
func NewAlphabet(s string) (Alphabet, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: alphabet is not valid UTF-8", ErrInvalidInput)
	}
	a := Alphabet(s)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate reports whether a is non-empty with distinct symbols.
func (a Alphabet) Validate() error {
	if len(a) == 0 {
		return fmt.Errorf("%w: alphabet is empty", ErrInvalidInput)
	}
	seen := make(map[rune]int, len(a))
	for i, r := range a {
		if j, dup := seen[r]; dup {
			return fmt.Errorf("%w: alphabet symbol %q repeated at positions %d and %d", ErrInvalidInput, r, j, i)
		}
		seen[r] = i
	}
	return nil
}

// Contains reports whether r is a symbol of a.
func (a Alphabet) Contains(r rune) bool {
	for _, s := range a {
		if s == r {
			return true
		}
	}
	return false
}

// String returns the symbols concatenated in order.
func (a Alphabet) String() string {
	return string(a)
}
