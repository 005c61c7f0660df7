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
	"context"
	"fmt"

	"github.com/AleutianAI/TimingOracle/pkg/cracker"
)

// Progress renders a run as it happens. It implements cracker.Observer.
//
// # Description
//
// Each completed round prints one line with the selected symbol and its
// score. With verbose set, every query is printed as well. Machine mode
// prints ROUND:, QUERY: and STATE: lines with key=value fields.
type Progress struct {
	console *Console
	length  int
	verbose bool
}

// NewProgress creates a progress renderer for a secret of length symbols.
func (c *Console) NewProgress(length int, verbose bool) *Progress {
	return &Progress{console: c, length: length, verbose: verbose}
}

// OnStateChange prints the start of a run and, in machine mode, every
// transition.
func (p *Progress) OnStateChange(_ context.Context, ev cracker.StateChange) {
	c := p.console
	if c.Machine() {
		c.printf(c.out, "STATE: from=%s to=%s position=%d prefix=%s\n", ev.From, ev.To, ev.Position, ev.Prefix)
		return
	}
	if ev.From == cracker.StateIdle && ev.To == cracker.StateIdle {
		c.Title(fmt.Sprintf("Recovering a %d-symbol secret", p.length))
		c.Muted("run " + ev.RunID)
	}
}

// OnMeasurement prints one query when verbose.
func (p *Progress) OnMeasurement(_ context.Context, m cracker.Measurement) {
	if !p.verbose {
		return
	}
	c := p.console
	if c.Machine() {
		c.printf(c.out, "QUERY: position=%d trial=%s sample=%d verdict=%s measurement=%.3f\n",
			m.Position, m.Trial, m.Sample, m.Result.Verdict, m.Result.Measurement)
		return
	}
	c.Muted(fmt.Sprintf("    %s %s %.3f", m.Trial, IconArrow, m.Result.Measurement))
}

// OnRound prints the outcome of a position.
func (p *Progress) OnRound(_ context.Context, r cracker.Round) {
	c := p.console
	switch c.level {
	case PersonalityMachine:
		c.printf(c.out, "ROUND: position=%d symbol=%s score=%.3f accepted=%t queries=%d\n",
			r.Position, string(r.Selected), r.SelectedScore, r.Accepted, r.Queries)
	case PersonalityMinimal:
		c.printf(c.out, "%s position %d: %q (score %.3f, %d queries)\n",
			IconBullet, r.Position, r.Selected, r.SelectedScore, r.Queries)
	default:
		mark := Styles.Highlight.Render(fmt.Sprintf("%q", r.Selected))
		if r.Accepted {
			mark += " " + IconSuccess.Render()
		}
		c.printf(c.out, "  %s  position %d %s %s  %s\n",
			ProgressBar(c.level, r.Position+1, p.length, 20),
			r.Position, IconArrow, mark,
			Styles.Muted.Render(fmt.Sprintf("score %.3f, %d queries", r.SelectedScore, r.Queries)),
		)
	}
}

var _ cracker.Observer = (*Progress)(nil)
