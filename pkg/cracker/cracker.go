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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/logging"
	"github.com/AleutianAI/TimingOracle/pkg/oracle"
	"github.com/AleutianAI/TimingOracle/pkg/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "timingoracle.cracker"

// =============================================================================
// Report
// =============================================================================

// Report describes a finished run.
type Report struct {
	// RunID identifies the run in logs, traces and exported measurements.
	RunID string

	// Candidate is the accepted secret when State is StateRecovered, and the
	// best guess built from the winning symbols otherwise.
	Candidate Candidate

	// State is the terminal state.
	State State

	// Rounds holds one entry per completed position.
	Rounds []Round

	// Queries is the total number of oracle queries issued.
	Queries int

	Alphabet Alphabet
	Length   int
	Policy   string
	Samples  int

	StartedAt time.Time
	Duration  time.Duration
}

// Recovered reports whether the oracle accepted Candidate.
func (r *Report) Recovered() bool {
	return r != nil && r.State == StateRecovered
}

// =============================================================================
// Cracker
// =============================================================================

// Option customises a Cracker.
type Option func(*Cracker)

// WithPolicy sets the sampling policy. The default is Single().
func WithPolicy(p Policy) Option {
	return func(c *Cracker) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithPadding right-pads every trial to the secret length with pad. Zero
// disables padding, which is the default.
func WithPadding(pad rune) Option {
	return func(c *Cracker) { c.pad = pad }
}

// WithObserver adds observers. They are called in the order given.
func WithObserver(observers ...Observer) Option {
	return func(c *Cracker) { c.observers = append(c.observers, observers...) }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Cracker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cracker runs the prefix-extension recovery against an oracle.
//
// # Description
//
// A Cracker holds configuration only; every call to Recover is an
// independent run with its own RunID. Queries within a run are strictly
// sequential.
//
// # Thread Safety
//
// Recover may be called from several goroutines only if the oracle supports
// concurrent queries. A TimingOracle backed by one instrument does not.
type Cracker struct {
	oracle    oracle.Oracle
	policy    Policy
	pad       rune
	observers []Observer
	observer  Observer
	logger    *logging.Logger
}

// New creates a Cracker for o.
//
// # Inputs
//
//   - o: The oracle to query. Must not be nil.
//   - opts: Policy, padding, observers and logger
//
// # Outputs
//
//   - *Cracker: Ready to run
//   - error: ErrInvalidInput when o is nil
func New(o oracle.Oracle, opts ...Option) (*Cracker, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: oracle is required", ErrInvalidInput)
	}
	c := &Cracker{
		oracle: o,
		policy: Single(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.observer = MultiObserver(c.observers...)
	return c, nil
}

// Recover runs the recovery loop with default options.
//
// # Description
//
// Equivalent to New(o) followed by Recover, returning only the candidate.
// The candidate is non-empty only when the oracle accepted it.
//
// # Inputs
//
//   - ctx: Cancellation for the whole run
//   - alphabet: Non-empty ordered symbols without duplicates
//   - length: Secret length, positive
//   - o: Oracle to query
//
// # Outputs
//
//   - Candidate: The accepted secret
//   - error: ErrInvalidInput, ErrRecoveryFailed, or the oracle's error
//
// # Example
//
//	secret, err := cracker.Recover(ctx, cracker.Digits(), 6, o)
func Recover(ctx context.Context, alphabet Alphabet, length int, o oracle.Oracle) (Candidate, error) {
	c, err := New(o)
	if err != nil {
		return "", err
	}
	rep, err := c.Recover(ctx, alphabet, length)
	if err != nil {
		return "", err
	}
	return rep.Candidate, nil
}

// Recover runs one recovery.
//
// # Description
//
// For each position, every alphabet symbol is appended to the confirmed
// prefix and queried Policy.Samples() times. An accepted query ends the run
// at once and the accepted trial becomes the candidate. Otherwise the symbol
// with the strictly greatest score is appended, ties going to the earliest
// symbol.
//
// # Outputs
//
//   - *Report: Always non-nil once inputs are valid, including on failure,
//     so callers can show the best guess and per-round scores
//   - error: nil when recovered; ErrRecoveryFailed (wrapped) when every
//     position was extended without acceptance; the oracle's error or
//     ctx.Err() unchanged when the run was aborted; ErrInvalidInput for bad
//     arguments (with a nil report)
func (c *Cracker) Recover(ctx context.Context, alphabet Alphabet, length int) (*Report, error) {
	if err := alphabet.Validate(); err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, fmt.Errorf("%w: secret length must be positive, got %d", ErrInvalidInput, length)
	}

	r := &run{
		Cracker:  c,
		alphabet: alphabet,
		length:   length,
		prefix:   make([]rune, 0, length),
		report: &Report{
			RunID:     uuid.NewString(),
			State:     StateIdle,
			Alphabet:  alphabet,
			Length:    length,
			Policy:    c.policy.Name(),
			Samples:   c.policy.Samples(),
			StartedAt: time.Now(),
		},
	}
	r.logger = c.logger.With("run_id", r.report.RunID)

	ctx, span := telemetry.StartSpan(ctx, tracerName, "Cracker.Recover",
		trace.WithAttributes(
			attribute.String("run_id", r.report.RunID),
			attribute.String("alphabet", alphabet.String()),
			attribute.Int("length", length),
			attribute.String("policy", c.policy.Name()),
			attribute.Int("samples", c.policy.Samples()),
		),
	)
	defer span.End()

	r.logger.Info("recovery started",
		"alphabet", alphabet.String(),
		"length", length,
		"policy", c.policy.Name(),
		"samples", c.policy.Samples(),
	)
	c.observer.OnStateChange(ctx, StateChange{RunID: r.report.RunID, From: StateIdle, To: StateIdle, Position: -1})

	err := r.loop(ctx)
	r.report.Duration = time.Since(r.report.StartedAt)

	span.SetAttributes(
		attribute.String("state", r.report.State.String()),
		attribute.Int("queries", r.report.Queries),
	)
	switch {
	case err == nil:
		telemetry.SetSpanOK(span)
		r.logger.Info("recovery succeeded",
			"candidate", r.report.Candidate.String(),
			"queries", r.report.Queries,
			"duration", r.report.Duration.String(),
		)
	case errors.Is(err, ErrRecoveryFailed):
		telemetry.RecordError(span, err)
		r.logger.Warn("recovery exhausted without acceptance",
			"best_guess", r.report.Candidate.String(),
			"queries", r.report.Queries,
		)
	default:
		telemetry.RecordError(span, err)
		r.logger.Error("recovery aborted",
			"error", err,
			"position", len(r.prefix),
			"prefix", string(r.prefix),
			"queries", r.report.Queries,
		)
	}
	return r.report, err
}

// =============================================================================
// Run
// =============================================================================

// run is the mutable state of one Recover call. Only the goroutine running
// Recover touches it.
type run struct {
	*Cracker
	alphabet Alphabet
	length   int
	prefix   []rune
	accepted string
	report   *Report
	logger   *logging.Logger
}

func (r *run) loop(ctx context.Context) error {
	for pos := 0; pos < r.length; pos++ {
		r.transition(ctx, StateSampling, pos, nil)

		round, err := r.sample(ctx, pos)
		if err != nil {
			r.report.Candidate = Candidate(r.prefix)
			r.transition(ctx, StateAborted, pos, err)
			return err
		}

		if round.Accepted {
			r.prefix = append(r.prefix, round.Selected)
			r.finishRound(ctx, round)
			r.report.Candidate = Candidate(r.accepted)
			r.transition(ctx, StateRecovered, pos, nil)
			return nil
		}

		r.transition(ctx, StateScoring, pos, nil)
		best := selectBest(round.Scores)
		round.Selected = round.Scores[best].Symbol
		round.SelectedScore = round.Scores[best].Score

		r.transition(ctx, StateExtending, pos, nil)
		r.prefix = append(r.prefix, round.Selected)
		r.finishRound(ctx, round)
	}

	r.report.Candidate = Candidate(r.prefix)
	err := fmt.Errorf("%w: best guess %q after %d queries", ErrRecoveryFailed, string(r.prefix), r.report.Queries)
	r.transition(ctx, StateExhausted, r.length-1, err)
	return err
}

// sample queries every symbol at pos. It stops early on acceptance, in
// which case the returned round is already marked Accepted.
func (r *run) sample(ctx context.Context, pos int) (Round, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Cracker.round",
		trace.WithAttributes(attribute.Int("position", pos)),
	)
	defer span.End()

	round := Round{
		RunID:    r.report.RunID,
		Position: pos,
		Scores:   make([]SymbolScore, 0, len(r.alphabet)),
	}
	n := r.policy.Samples()

	for _, sym := range r.alphabet {
		trial := r.trial(sym)
		samples := make([]float64, 0, n)

		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				telemetry.RecordError(span, err)
				return round, err
			}

			res, err := r.oracle.Query(ctx, trial)
			round.Queries++
			r.report.Queries++
			if err != nil {
				telemetry.RecordError(span, err, attribute.String("trial", trial))
				r.logger.Debug("query failed", "position", pos, "trial", trial, "error", err)
				return round, err
			}

			r.observer.OnMeasurement(ctx, Measurement{
				RunID:    r.report.RunID,
				Position: pos,
				Symbol:   sym,
				Trial:    trial,
				Sample:   i,
				Result:   res,
			})
			samples = append(samples, res.Measurement)

			if res.IsAccepted() {
				score := r.policy.Reduce(samples)
				round.Scores = append(round.Scores, SymbolScore{
					Symbol:   sym,
					Score:    score,
					Samples:  samples,
					Accepted: true,
				})
				round.Selected = sym
				round.SelectedScore = score
				round.Accepted = true
				r.accepted = trial
				telemetry.AddSpanEvent(span, "accepted", attribute.String("trial", trial))
				return round, nil
			}
		}

		round.Scores = append(round.Scores, SymbolScore{
			Symbol:  sym,
			Score:   r.policy.Reduce(samples),
			Samples: samples,
		})
	}
	return round, nil
}

// trial builds prefix+sym, right-padded to the secret length when padding
// is enabled.
func (r *run) trial(sym rune) string {
	var b strings.Builder
	b.Grow((r.length + 1) * 4)
	b.WriteString(string(r.prefix))
	b.WriteRune(sym)
	if r.pad != 0 {
		for i := len(r.prefix) + 1; i < r.length; i++ {
			b.WriteRune(r.pad)
		}
	}
	return b.String()
}

func (r *run) finishRound(ctx context.Context, round Round) {
	r.report.Rounds = append(r.report.Rounds, round)
	r.logger.Info("round complete",
		"position", round.Position,
		"selected", string(round.Selected),
		"score", round.SelectedScore,
		"accepted", round.Accepted,
		"prefix", string(r.prefix),
	)
	r.observer.OnRound(ctx, round)
}

func (r *run) transition(ctx context.Context, to State, pos int, err error) {
	from := r.report.State
	r.report.State = to
	r.observer.OnStateChange(ctx, StateChange{
		RunID:    r.report.RunID,
		From:     from,
		To:       to,
		Position: pos,
		Prefix:   Candidate(r.prefix),
		Err:      err,
	})
}

// selectBest returns the index of the strictly greatest score. Ties keep
// the earliest index. scores must be non-empty.
func selectBest(scores []SymbolScore) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].Score > scores[best].Score {
			best = i
		}
	}
	return best
}
