// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/TimingOracle/cmd/timingoracle/config"
	"github.com/spf13/cobra"
)

// simFlags override the simulator section of the configuration.
type simFlags struct {
	secret       string
	jitter       float64
	seed         uint64
	acceptPrefix bool
	hang         bool
	latency      time.Duration
}

func (f *simFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.secret, "secret", "", "secret held by the simulated keypad")
	fs.Float64Var(&f.jitter, "jitter", 0, "standard deviation of timing noise, in samples")
	fs.Uint64Var(&f.seed, "seed", 0, "noise seed")
	fs.BoolVar(&f.acceptPrefix, "accept-prefix", false, "accept any prefix of the secret, like the demo firmware")
	fs.BoolVar(&f.hang, "hang", false, "never complete a capture, to exercise the timeout path")
	fs.DurationVar(&f.latency, "latency", 0, "delay before each response line")
}

// apply sets the simulator fields. Without --length the secret length
// follows the secret.
func (f *simFlags) apply(cmd *cobra.Command, cfg *config.TimingOracleConfig) {
	changed := cmd.Flags().Changed
	if changed("secret") {
		cfg.Simulator.Secret = f.secret
		if !changed("length") {
			cfg.Cracker.Length = utf8.RuneCountInString(f.secret)
		}
	}
	if changed("jitter") {
		cfg.Simulator.Jitter = f.jitter
	}
	if changed("seed") {
		cfg.Simulator.Seed = f.seed
	}
	if changed("accept-prefix") {
		cfg.Simulator.AcceptPrefix = f.acceptPrefix
	}
	if changed("hang") {
		cfg.Simulator.HangCapture = f.hang
	}
	if changed("latency") {
		cfg.Simulator.Latency = f.latency
	}
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var (
		run runFlags
		sim simFlags
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a full recovery against the simulated keypad bench",
		Example: `  timingoracle simulate --secret 424344
  timingoracle simulate --secret 424344 --jitter 6 --sampling median --samples 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := newSession(ctx, opts, func(cfg *config.TimingOracleConfig) error {
				run.apply(cmd, cfg)
				sim.apply(cmd, cfg)
				return nil
			})
			if err != nil {
				return err
			}
			defer s.close()

			o, bench, err := s.simulatedOracle(ctx)
			if err != nil {
				return err
			}
			_, err = s.recover(ctx, "simulate", o)
			s.console.Muted("bench: " + bench.Stats().String())
			return err
		},
	}
	run.register(cmd)
	sim.register(cmd)
	return cmd
}
