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
	"github.com/AleutianAI/TimingOracle/cmd/timingoracle/config"
	"github.com/AleutianAI/TimingOracle/pkg/oracle"
	"github.com/spf13/cobra"
)

func newProbeCmd(opts *rootOptions) *cobra.Command {
	var (
		repeat   int
		simulate bool
		sim      simFlags
	)
	cmd := &cobra.Command{
		Use:   "probe CANDIDATE",
		Short: "Query one candidate repeatedly and summarise the measurements",
		Long: `Probe sends the same candidate several times and prints the verdicts and
measurement statistics. Comparing a wrong first symbol with a right one
shows whether the threshold and divisor separate them.`,
		Example: `  timingoracle probe 1 --repeat 20
  timingoracle probe 4 --repeat 20 --simulate --jitter 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := newSession(ctx, opts, func(cfg *config.TimingOracleConfig) error {
				sim.apply(cmd, cfg)
				return nil
			})
			if err != nil {
				return err
			}
			defer s.close()

			var o oracle.Oracle
			if simulate {
				o, _, err = s.simulatedOracle(ctx)
				if err != nil {
					return err
				}
			} else {
				o, err = s.hardwareOracle(ctx, "probe")
				if err != nil {
					return err
				}
			}
			return s.probe(ctx, o, args[0], repeat)
		},
	}
	cmd.Flags().IntVarP(&repeat, "repeat", "n", 10, "number of queries")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "probe the simulated bench instead of the hardware")
	sim.register(cmd)
	return cmd
}
