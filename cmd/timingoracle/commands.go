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
	"context"
	"io"
	"os"

	"github.com/AleutianAI/TimingOracle/pkg/ux"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// streams are the process outputs. tty is consulted for terminal detection.
type streams struct {
	out io.Writer
	err io.Writer
	tty *os.File
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	streams

	configPath  string
	personality string
	logLevel    string
	verbose     bool
}

func (o *rootOptions) console() *ux.Console {
	return ux.NewConsole(o.out, o.err, ux.DetectPersonality(o.personality, o.tty))
}

// execute runs the CLI and returns the exit status.
func execute(ctx context.Context, args []string, s streams) int {
	opts := &rootOptions{streams: s}
	root := newRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(s.out)
	root.SetErr(s.err)

	err := root.ExecuteContext(ctx)
	if err != nil && !rendered(err) {
		opts.console().Error(err.Error())
	}
	return exitCode(err)
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "timingoracle",
		Short: "Recover a keypad secret from the timing of its comparison",
		Long: `timingoracle arms an oscilloscope, sends candidate secrets to a keypad
firmware over a serial link, and measures how long the firmware spends
comparing each one. The comparison exits at the first wrong symbol, so the
longest measurement reveals the next correct symbol.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default ~/.timingoracle/config.yaml)")
	pf.StringVar(&opts.personality, "personality", "", "output style: full, minimal or machine (default: detect)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "print every query")

	root.AddCommand(
		newCrackCmd(opts),
		newSimulateCmd(opts),
		newProbeCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(opts),
	)
	return root
}
