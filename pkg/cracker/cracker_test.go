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
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/keypad"
	"github.com/AleutianAI/TimingOracle/pkg/oracle"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Test Fixtures
// =============================================================================

// prefixOracle scores a candidate by its matching-prefix length and accepts
// only the exact secret.
type prefixOracle struct {
	secret   string
	mu       sync.Mutex
	trials   []string
	accepted int
}

func (p *prefixOracle) Query(_ context.Context, candidate string) (oracle.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trials = append(p.trials, candidate)
	if candidate == p.secret {
		p.accepted++
		return oracle.Result{Verdict: oracle.VerdictAccepted, Measurement: float64(len(p.secret))}, nil
	}
	return oracle.Rejected(float64(keypad.MatchedPrefix(candidate, p.secret))), nil
}

// recorder captures every observer event.
type recorder struct {
	mu           sync.Mutex
	states       []StateChange
	measurements []Measurement
	rounds       []Round
}

func (r *recorder) OnStateChange(_ context.Context, ev StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, ev)
}

func (r *recorder) OnMeasurement(_ context.Context, m Measurement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.measurements = append(r.measurements, m)
}

func (r *recorder) OnRound(_ context.Context, rd Round) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, rd)
}

func (r *recorder) stateSequence() []State {
	out := make([]State, 0, len(r.states))
	for _, ev := range r.states {
		out = append(out, ev.To)
	}
	return out
}

func newCracker(t *testing.T, o oracle.Oracle, opts ...Option) (*Cracker, *recorder) {
	t.Helper()
	rec := &recorder{}
	c, err := New(o, append(opts, WithObserver(rec))...)
	require.NoError(t, err)
	return c, rec
}

// =============================================================================
// Recovery Scenarios
// =============================================================================

func TestRecover_KeypadScenario(t *testing.T) {
	o := &prefixOracle{secret: "424344"}
	c, rec := newCracker(t, o)

	rep, err := c.Recover(context.Background(), Digits(), 6)
	require.NoError(t, err)

	assert.Equal(t, Candidate("424344"), rep.Candidate)
	assert.Equal(t, StateRecovered, rep.State)
	assert.True(t, rep.Recovered())
	require.Len(t, rep.Rounds, 6)

	// Round 0: '4' scores 1, every other digit 0.
	r0 := rep.Rounds[0]
	assert.Equal(t, '4', r0.Selected)
	assert.Equal(t, 1.0, r0.SelectedScore)
	for _, sc := range r0.Scores {
		want := 0.0
		if sc.Symbol == '4' {
			want = 1
		}
		assert.Equal(t, want, sc.Score, "symbol %q", sc.Symbol)
	}

	var selected []rune
	for i, rd := range rep.Rounds {
		assert.Equal(t, i, rd.Position)
		selected = append(selected, rd.Selected)
		if i < 5 {
			assert.False(t, rd.Accepted)
			assert.Len(t, rd.Scores, 10)
			assert.Equal(t, float64(i+1), rd.SelectedScore)
		}
	}
	assert.Equal(t, "424344", string(selected))

	final := rep.Rounds[5]
	assert.True(t, final.Accepted)
	assert.Equal(t, 5, final.Queries, "digits 0-4 in the final round")
	assert.Equal(t, 5*10+5, rep.Queries)
	assert.Equal(t, "424344", o.trials[len(o.trials)-1])
	assert.Equal(t, 1, o.accepted)
	assert.Len(t, rec.rounds, 6)
	assert.NotEmpty(t, rep.RunID)
}

func TestRecover_RandomSecrets(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	alphabets := []Alphabet{Digits(), Alphabet("ABCDEF"), Alphabet("xy")}

	for trial := 0; trial < 50; trial++ {
		alphabet := alphabets[trial%len(alphabets)]
		length := 1 + rng.IntN(8)
		secret := make([]rune, length)
		for i := range secret {
			secret[i] = alphabet[rng.IntN(len(alphabet))]
		}

		o := &prefixOracle{secret: string(secret)}
		c, _ := newCracker(t, o)
		rep, err := c.Recover(context.Background(), alphabet, length)
		require.NoError(t, err, "secret %q", string(secret))

		assert.Equal(t, Candidate(secret), rep.Candidate)
		assert.Len(t, rep.Rounds, length)
		assert.LessOrEqual(t, rep.Queries, length*len(alphabet))
		assert.Equal(t, 1, o.accepted)
		for i, rd := range rep.Rounds {
			assert.Equal(t, i == length-1, rd.Accepted, "acceptance only in the final round")
		}
	}
}

func TestRecover_TieGoesToEarliestSymbol(t *testing.T) {
	// '3' and '7' tie for the maximum in every round.
	o := oracle.Func(func(_ context.Context, c string) (oracle.Result, error) {
		switch c[len(c)-1] {
		case '3', '7':
			return oracle.Rejected(5), nil
		case '9':
			return oracle.Rejected(4.999), nil
		default:
			return oracle.Rejected(1), nil
		}
	})
	c, _ := newCracker(t, o)

	for run := 0; run < 3; run++ {
		rep, err := c.Recover(context.Background(), Digits(), 3)
		require.ErrorIs(t, err, ErrRecoveryFailed)
		assert.Equal(t, Candidate("333"), rep.Candidate)
	}

	// Reordering the alphabet moves the winner.
	rep, err := c.Recover(context.Background(), Alphabet("9876543210"), 2)
	require.ErrorIs(t, err, ErrRecoveryFailed)
	assert.Equal(t, Candidate("77"), rep.Candidate)
}

func TestRecover_FlatOracleExhausts(t *testing.T) {
	o := oracle.Func(func(context.Context, string) (oracle.Result, error) {
		return oracle.Rejected(42), nil
	})
	c, rec := newCracker(t, o)

	rep, err := c.Recover(context.Background(), Digits(), 6)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecoveryFailed))
	assert.Equal(t, StateExhausted, rep.State)
	assert.Equal(t, Candidate("000000"), rep.Candidate)
	assert.Equal(t, 60, rep.Queries)
	assert.Len(t, rep.Rounds, 6)
	assert.False(t, rep.Recovered())

	last := rec.states[len(rec.states)-1]
	assert.Equal(t, StateExhausted, last.To)
	assert.ErrorIs(t, last.Err, ErrRecoveryFailed)
}

func TestRecover_SecretLongerThanLength(t *testing.T) {
	o := &prefixOracle{secret: "4243441"}

	got, err := Recover(context.Background(), Digits(), 6, o)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecoveryFailed))
	assert.Empty(t, got)
	assert.Equal(t, 0, o.accepted)
	assert.Len(t, o.trials, 60)
	assert.Contains(t, err.Error(), `"424344"`, "best guess is reported")
}

func TestRecover_HungCaptureSurfacesUnavailable(t *testing.T) {
	lock, err := keypad.NewLock("424344")
	require.NoError(t, err)
	bench := keypad.NewBench(lock, keypad.BenchConfig{HangCapture: true})

	o, err := oracle.NewTimingOracle(bench, bench, oracle.TimingConfig{
		Calibration:    bench.Calibration(),
		ArmTimeout:     100 * time.Millisecond,
		CaptureTimeout: 50 * time.Millisecond,
		PollInterval:   time.Millisecond,
	})
	require.NoError(t, err)

	c, rec := newCracker(t, o)
	start := time.Now()
	rep, err := c.Recover(context.Background(), Digits(), 6)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, oracle.ErrOracleUnavailable))
	assert.False(t, errors.Is(err, ErrRecoveryFailed))
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, StateAborted, rep.State)
	assert.Equal(t, 1, rep.Queries)
	assert.Empty(t, rep.Rounds)
	assert.Equal(t, "oracle_unavailable", ErrorKind(err))

	var unavailable *oracle.UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, oracle.StageCapture, unavailable.Stage)
	assert.ErrorIs(t, rec.states[len(rec.states)-1].Err, oracle.ErrOracleUnavailable)
}

func TestRecover_BenchEndToEnd(t *testing.T) {
	lock, err := keypad.NewLock("424344")
	require.NoError(t, err)
	bench := keypad.NewBench(lock, keypad.BenchConfig{Jitter: 4, Seed: 11})

	o, err := oracle.NewTimingOracle(bench, bench, oracle.TimingConfig{
		Calibration:  bench.Calibration(),
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)

	c, _ := newCracker(t, o, WithPolicy(Median(3)))
	rep, err := c.Recover(context.Background(), Digits(), lock.SecretLength())
	require.NoError(t, err)
	assert.Equal(t, Candidate("424344"), rep.Candidate)
	assert.Equal(t, bench.Stats().Captures, rep.Queries)
}

func TestRecover_DemoFirmwareAcceptsPrefix(t *testing.T) {
	lock, err := keypad.NewLock("424344", keypad.WithAcceptPrefix(true))
	require.NoError(t, err)
	bench := keypad.NewBench(lock, keypad.BenchConfig{})
	o, err := oracle.NewTimingOracle(bench, bench, oracle.TimingConfig{
		Calibration:  bench.Calibration(),
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)

	got, err := Recover(context.Background(), Digits(), 6, o)
	require.NoError(t, err)
	assert.Equal(t, Candidate("4"), got)
}

// =============================================================================
// State Machine and Observers
// =============================================================================

func TestRecover_StateSequence(t *testing.T) {
	o := &prefixOracle{secret: "ba"}
	c, rec := newCracker(t, o)

	_, err := c.Recover(context.Background(), Alphabet("ab"), 2)
	require.NoError(t, err)

	want := []State{
		StateIdle,
		StateSampling, StateScoring, StateExtending,
		StateSampling, StateRecovered,
	}
	if diff := cmp.Diff(want, rec.stateSequence()); diff != "" {
		t.Errorf("state sequence mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, -1, rec.states[0].Position)
	assert.Equal(t, Candidate("ba"), rec.states[len(rec.states)-1].Prefix)

	var trials []string
	for _, m := range rec.measurements {
		trials = append(trials, m.Trial)
	}
	assert.Equal(t, []string{"a", "b", "ba"}, trials)
}

func TestRecover_Padding(t *testing.T) {
	o := &prefixOracle{secret: "1200"}
	c, rec := newCracker(t, o, WithPadding('0'))

	rep, err := c.Recover(context.Background(), Alphabet("0123"), 4)
	require.NoError(t, err)
	assert.Equal(t, Candidate("1200"), rep.Candidate)

	for _, m := range rec.measurements {
		assert.Len(t, m.Trial, 4, "trial %q", m.Trial)
	}
	// Round 0 tries "0000", "1000"; round 1 tries "1000" .. "1200", which
	// is accepted as a whole.
	assert.Equal(t, []string{"0000", "1000", "2000", "3000", "1000", "1100", "1200"}, o.trials)
	assert.Len(t, rep.Rounds, 2)
}

func TestRecover_MeanPolicyQueriesEachSymbolNTimes(t *testing.T) {
	calls := map[string]int{}
	var mu sync.Mutex
	o := oracle.Func(func(_ context.Context, c string) (oracle.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		calls[c]++
		// A single spike on '1' loses to a consistently high '2'.
		switch {
		case c == "1" && calls[c] == 1:
			return oracle.Rejected(100), nil
		case c == "2":
			return oracle.Rejected(45), nil
		default:
			return oracle.Rejected(10), nil
		}
	})

	c, rec := newCracker(t, o, WithPolicy(Mean(3)))
	rep, err := c.Recover(context.Background(), Alphabet("012"), 1)
	require.ErrorIs(t, err, ErrRecoveryFailed)

	assert.Equal(t, Candidate("2"), rep.Candidate)
	assert.Equal(t, 9, rep.Queries)
	assert.Equal(t, map[string]int{"0": 3, "1": 3, "2": 3}, calls)
	assert.Equal(t, []float64{100, 10, 10}, rep.Rounds[0].Scores[1].Samples)
	assert.Equal(t, 40.0, rep.Rounds[0].Scores[1].Score)

	samples := []int{}
	for _, m := range rec.measurements[:3] {
		samples = append(samples, m.Sample)
	}
	assert.Equal(t, []int{0, 1, 2}, samples)
}

func TestRecover_AcceptanceMidSampling(t *testing.T) {
	o := &prefixOracle{secret: "1"}
	c, _ := newCracker(t, o, WithPolicy(Median(5)))

	rep, err := c.Recover(context.Background(), Alphabet("01"), 1)
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Queries, "5 samples of '0' and the accepted first sample of '1'")
	assert.True(t, rep.Rounds[0].Scores[1].Accepted)
}

// =============================================================================
// Error Handling
// =============================================================================

func TestRecover_InvalidInput(t *testing.T) {
	o := &prefixOracle{secret: "1"}
	c, _ := newCracker(t, o)

	tests := []struct {
		name     string
		alphabet Alphabet
		length   int
	}{
		{"empty alphabet", Alphabet(""), 3},
		{"duplicate symbols", Alphabet("0120"), 3},
		{"zero length", Digits(), 0},
		{"negative length", Digits(), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := c.Recover(context.Background(), tt.alphabet, tt.length)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, rep)
		})
	}
	assert.Empty(t, o.trials)

	_, err := New(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Recover(context.Background(), Digits(), 1, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecover_MalformedResponseAborts(t *testing.T) {
	o := oracle.Func(func(_ context.Context, c string) (oracle.Result, error) {
		if strings.HasPrefix(c, "3") {
			return oracle.Result{}, &oracle.MalformedResponseError{Line: "LOCKED"}
		}
		return oracle.Rejected(1), nil
	})
	c, _ := newCracker(t, o)

	rep, err := c.Recover(context.Background(), Digits(), 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, oracle.ErrMalformedResponse))
	assert.Equal(t, StateAborted, rep.State)
	assert.Equal(t, 4, rep.Queries)
	assert.Equal(t, "malformed_response", ErrorKind(err))
}

func TestRecover_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queries := 0
	o := oracle.Func(func(context.Context, string) (oracle.Result, error) {
		queries++
		if queries == 15 {
			cancel()
		}
		return oracle.Rejected(0), nil
	})
	c, _ := newCracker(t, o)

	rep, err := c.Recover(ctx, Digits(), 6)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, rep.State)
	assert.Equal(t, 15, rep.Queries)
	assert.Equal(t, Candidate("0"), rep.Candidate, "confirmed prefix at abort")
}

func TestSelectBest(t *testing.T) {
	scores := func(vals ...float64) []SymbolScore {
		out := make([]SymbolScore, len(vals))
		for i, v := range vals {
			out[i] = SymbolScore{Symbol: rune('a' + i), Score: v}
		}
		return out
	}
	assert.Equal(t, 0, selectBest(scores(1)))
	assert.Equal(t, 2, selectBest(scores(1, 2, 3)))
	assert.Equal(t, 1, selectBest(scores(1, 3, 3)))
	assert.Equal(t, 0, selectBest(scores(0, 0, 0)))
}
