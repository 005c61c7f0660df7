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
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/cracker"
	"github.com/AleutianAI/TimingOracle/pkg/oracle"
)

// Report prints the outcome of a run.
//
// # Inputs
//
//   - rep: The run report; nil when the inputs were rejected
//   - err: The error returned with it, or nil
func (c *Console) Report(rep *cracker.Report, err error) {
	if rep == nil {
		if err != nil {
			c.Error(err.Error())
		}
		return
	}

	pairs := [][2]string{
		{"state", rep.State.String()},
		{"candidate", rep.Candidate.String()},
		{"queries", strconv.Itoa(rep.Queries)},
		{"rounds", strconv.Itoa(len(rep.Rounds))},
		{"sampling", fmt.Sprintf("%s x%d", rep.Policy, rep.Samples)},
		{"duration", rep.Duration.Round(time.Millisecond).String()},
		{"run id", rep.RunID},
	}

	if c.Machine() {
		c.KeyValues(pairs)
		if err != nil {
			c.Error(err.Error())
		}
		return
	}

	body := renderPairs(pairs)
	switch {
	case rep.Recovered():
		c.Box("Secret recovered", body)
	case errors.Is(err, cracker.ErrRecoveryFailed):
		c.WarningBox("No candidate was accepted", body+"\n\nThe candidate above is the best guess.")
	default:
		msg := "unknown error"
		if err != nil {
			msg = err.Error()
		}
		c.ErrorBox("Recovery aborted", body+"\n\n"+msg)
	}
}

func renderPairs(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0]))
	}
	lines := make([]string, 0, len(pairs))
	for _, p := range pairs {
		lines = append(lines, Styles.Muted.Render(fmt.Sprintf("%-*s", width, p[0]))+"  "+p[1])
	}
	return strings.Join(lines, "\n")
}

// ProbeStats prints the summary of repeated queries of one candidate.
func (c *Console) ProbeStats(s oracle.ProbeStats) {
	pairs := [][2]string{
		{"candidate", s.Candidate},
		{"queries", strconv.Itoa(s.Count())},
		{"accepted", strconv.Itoa(s.Accepted)},
		{"rejected", strconv.Itoa(s.Rejected)},
		{"min", fmt.Sprintf("%.3f", s.Min)},
		{"median", fmt.Sprintf("%.3f", s.Median)},
		{"mean", fmt.Sprintf("%.3f", s.Mean)},
		{"max", fmt.Sprintf("%.3f", s.Max)},
		{"stddev", fmt.Sprintf("%.3f", s.StdDev)},
	}
	if c.Machine() {
		c.KeyValues(pairs)
		return
	}
	c.Box("Probe", renderPairs(pairs))
}
