// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestConsole(level PersonalityLevel) (*Console, *bytes.Buffer, *bytes.Buffer) {
	var out, errw bytes.Buffer
	return NewConsole(&out, &errw, level), &out, &errw
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending} {
		assert.Contains(t, icon.Render(), string(icon))
	}
	assert.Equal(t, string(IconArrow), IconArrow.Render())
	assert.Equal(t, string(IconBullet), IconBullet.Render())
}

// =============================================================================
// Console Tests
// =============================================================================

func TestConsole_MachineMode(t *testing.T) {
	c, out, errw := newTestConsole(PersonalityMachine)

	c.Title("ignored")
	c.Muted("ignored")
	c.Success("done")
	c.Info("plain")
	c.Warning("careful")
	c.Error("broken")

	assert.Equal(t, "OK: done\nplain\n", out.String())
	assert.Equal(t, "WARN: careful\nERROR: broken\n", errw.String())
	assert.True(t, c.Machine())
}

func TestConsole_FullMode(t *testing.T) {
	c, out, errw := newTestConsole(PersonalityFull)

	c.Title("Recovering")
	c.Success("done")
	c.Error("broken")

	s := out.String()
	assert.Contains(t, s, "Recovering")
	assert.Contains(t, s, string(IconSuccess))
	assert.Contains(t, s, "broken")
	assert.Empty(t, errw.String(), "interactive errors stay with the rest of the output")
}

func TestConsole_MinimalMode(t *testing.T) {
	c, out, _ := newTestConsole(PersonalityMinimal)

	c.Warning("slow link")
	c.Box("Title", "body")

	assert.Contains(t, out.String(), string(IconWarning)+" slow link")
	assert.Contains(t, out.String(), "Title\nbody\n")
}

func TestConsole_NilErrWriter(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, nil, PersonalityMachine)
	c.Error("x")
	assert.Equal(t, "ERROR: x\n", out.String())
}

func TestConsole_KeyValues(t *testing.T) {
	pairs := [][2]string{{"run id", "abc"}, {"queries", "12"}}

	c, out, _ := newTestConsole(PersonalityMachine)
	c.KeyValues(pairs)
	assert.Equal(t, "RUN_ID: abc\nQUERIES: 12\n", out.String())

	c, out, _ = newTestConsole(PersonalityFull)
	c.KeyValues(pairs)
	assert.Contains(t, out.String(), "abc")
	assert.Contains(t, out.String(), "queries")
}

func TestConsole_Box(t *testing.T) {
	c, out, _ := newTestConsole(PersonalityMachine)
	c.Box("Result", "line one\nline two")
	assert.Equal(t, "RESULT: line one; line two\n", out.String())

	c, out, _ = newTestConsole(PersonalityFull)
	c.ErrorBox("Failure", "link down")
	assert.Contains(t, out.String(), "Failure")
	assert.Contains(t, out.String(), "link down")
	assert.Contains(t, out.String(), "╭", "full mode draws a rounded border")
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "2/6", ProgressBar(PersonalityMachine, 2, 6, 10))
	assert.Equal(t, "0/0", ProgressBar(PersonalityFull, 0, 0, 10))

	bar := ProgressBar(PersonalityFull, 3, 6, 10)
	assert.Equal(t, 5, strings.Count(bar, "█"))
	assert.Equal(t, 5, strings.Count(bar, "░"))
	assert.Contains(t, bar, " 50%")

	full := ProgressBar(PersonalityFull, 7, 6, 10)
	assert.Equal(t, 10, strings.Count(full, "█"), "overflow is clamped")
}

// =============================================================================
// Personality Tests
// =============================================================================

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		in   string
		want PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"STD", PersonalityFull},
		{"min", PersonalityMinimal},
		{" machine ", PersonalityMachine},
		{"q", PersonalityMachine},
		{"bogus", PersonalityFull},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePersonalityLevel(tt.in))
		})
	}
}

func TestDetectPersonality(t *testing.T) {
	t.Setenv(PersonalityEnv, "")

	assert.Equal(t, PersonalityMinimal, DetectPersonality("minimal", nil))
	assert.Equal(t, PersonalityMachine, DetectPersonality("", nil), "no terminal means machine output")

	f, err := os.CreateTemp(t.TempDir(), "out")
	assert.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminal(f))
	assert.Equal(t, PersonalityMachine, DetectPersonality("", f))

	t.Setenv(PersonalityEnv, "full")
	assert.Equal(t, PersonalityFull, DetectPersonality("", f))
}
