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

	"github.com/AleutianAI/TimingOracle/cmd/timingoracle/config"
	"github.com/spf13/cobra"
)

// runFlags override the cracker and status sections of the configuration.
// Only flags given on the command line are applied.
type runFlags struct {
	length       int
	alphabet     string
	sampling     string
	samples      int
	pad          string
	minInterval  time.Duration
	statusListen string
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.length, "length", 0, "secret length in symbols")
	fs.StringVar(&f.alphabet, "alphabet", "", "candidate symbols in tie-break order")
	fs.StringVar(&f.sampling, "sampling", "", "per-symbol sampling: single, mean or median")
	fs.IntVar(&f.samples, "samples", 0, "queries per symbol for mean and median")
	fs.StringVar(&f.pad, "pad", "", "right-pad trials to the secret length with this symbol")
	fs.DurationVar(&f.minInterval, "min-interval", 0, "minimum spacing between queries")
	fs.StringVar(&f.statusListen, "status-listen", "", "serve progress over HTTP on this address")
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.TimingOracleConfig) {
	changed := cmd.Flags().Changed
	if changed("length") {
		cfg.Cracker.Length = f.length
	}
	if changed("alphabet") {
		cfg.Cracker.Alphabet = f.alphabet
	}
	if changed("sampling") {
		cfg.Cracker.Sampling.Strategy = f.sampling
		if f.sampling == "single" && !changed("samples") {
			cfg.Cracker.Sampling.Samples = 1
		}
	}
	if changed("samples") {
		cfg.Cracker.Sampling.Samples = f.samples
	}
	if changed("pad") {
		cfg.Cracker.Pad = f.pad
	}
	if changed("min-interval") {
		cfg.Cracker.MinQueryInterval = f.minInterval
	}
	if changed("status-listen") {
		cfg.Status.Listen = f.statusListen
	}
}

func newCrackCmd(opts *rootOptions) *cobra.Command {
	var (
		run    runFlags
		device string
		scope  string
	)
	cmd := &cobra.Command{
		Use:   "crack",
		Short: "Recover the secret from the hardware bench",
		Long: `Recover the secret symbol by symbol from the keypad on the serial link,
timing each candidate with the scope. Settings come from the config file;
flags override them for this run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := newSession(ctx, opts, func(cfg *config.TimingOracleConfig) error {
				run.apply(cmd, cfg)
				if cmd.Flags().Changed("device") {
					cfg.Target.Address = device
				}
				if cmd.Flags().Changed("scope") {
					cfg.Instrument.Address = scope
				}
				return nil
			})
			if err != nil {
				return err
			}
			defer s.close()

			o, err := s.hardwareOracle(ctx, "crack")
			if err != nil {
				return err
			}
			_, err = s.recover(ctx, "crack", o)
			return err
		},
	}
	run.register(cmd)
	cmd.Flags().StringVar(&device, "device", "", "target serial device or tcp://host:port")
	cmd.Flags().StringVar(&scope, "scope", "", "scope SCPI address host[:port]")
	return cmd
}
