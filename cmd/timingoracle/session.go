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
	"fmt"
	"time"

	"github.com/AleutianAI/TimingOracle/cmd/timingoracle/config"
	"github.com/AleutianAI/TimingOracle/cmd/timingoracle/internal/status"
	"github.com/AleutianAI/TimingOracle/pkg/cracker"
	"github.com/AleutianAI/TimingOracle/pkg/instrument/scpi"
	"github.com/AleutianAI/TimingOracle/pkg/keypad"
	"github.com/AleutianAI/TimingOracle/pkg/logging"
	"github.com/AleutianAI/TimingOracle/pkg/oracle"
	"github.com/AleutianAI/TimingOracle/pkg/sink"
	"github.com/AleutianAI/TimingOracle/pkg/target"
	"github.com/AleutianAI/TimingOracle/pkg/telemetry"
	"github.com/AleutianAI/TimingOracle/pkg/ux"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
)

const serviceName = "timingoracle"

// shutdownTimeout bounds flushing telemetry and the sink on exit.
const shutdownTimeout = 5 * time.Second

// session is the per-invocation environment: configuration, output,
// logging, telemetry, the measurement sink and the optional status server.
type session struct {
	cfg     config.TimingOracleConfig
	console *ux.Console
	logger  *logging.Logger
	verbose bool

	shutdownTelemetry func(context.Context) error
	metrics           *telemetry.Metrics
	sink              sink.Sink
	tracker           *status.Tracker
	status            *status.Server
	closers           []func() error
}

// newSession loads the configuration, applies override and starts the
// ambient services. The caller must call close.
func newSession(ctx context.Context, opts *rootOptions, override func(*config.TimingOracleConfig) error) (*session, error) {
	cfg, path, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		if err := override(&cfg); err != nil {
			return nil, err
		}
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logger, err := cfg.Logging.Logger(serviceName, opts.err)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:     cfg,
		console: opts.console(),
		logger:  logger,
		verbose: opts.verbose,
		sink:    sink.Nop{},
		tracker: status.NewTracker(cfg.Cracker.Length),
	}
	logger.Debug("configuration loaded", "path", path)

	cfg.Telemetry.ServiceVersion = Version
	s.shutdownTelemetry, err = telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	s.metrics, err = telemetry.NewMetrics(otel.Meter(serviceName))
	if err != nil {
		s.close()
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	if cfg.Sink.Influx != nil {
		influx, err := sink.NewInflux(*cfg.Sink.Influx)
		if err != nil {
			s.close()
			return nil, err
		}
		s.sink = influx
		logger.Info("exporting measurements to influxdb", "url", cfg.Sink.Influx.URL, "bucket", cfg.Sink.Influx.Bucket)
	}

	if cfg.Status.Listen != "" {
		gin.SetMode(gin.ReleaseMode)
		router := status.NewRouter(s.tracker, telemetry.MetricsHandler(), Version)
		s.status, err = status.Start(cfg.Status.Listen, router, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		s.console.Muted("status: http://" + s.status.Addr() + "/v1/progress")
	}
	return s, nil
}

// close releases everything the session opened, newest first.
func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close failed", "error", err)
		}
	}
	if s.status != nil {
		if err := s.status.Shutdown(ctx); err != nil {
			s.logger.Warn("status server shutdown failed", "error", err)
		}
	}
	if err := s.sink.Close(ctx); err != nil {
		s.logger.Warn("sink close failed", "error", err)
	}
	if s.shutdownTelemetry != nil {
		if err := s.shutdownTelemetry(ctx); err != nil {
			s.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
	_ = s.logger.Close()
}

func (s *session) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// hardwareOracle opens the target link and the scope and configures the
// scope's acquisition. Failures the spinner already printed come back as a
// rendered *CommandError for command.
func (s *session) hardwareOracle(ctx context.Context, command string) (oracle.Oracle, error) {
	cfg := s.cfg

	var tgt *target.LineTarget
	err := s.console.WithSpinner("opening target "+cfg.Target.Address, func() error {
		var err error
		tgt, err = target.Open(ctx, cfg.Target.Address, cfg.Target.Baud,
			target.WithLineEnding(cfg.Target.EOL()),
			target.WithEchoSkip(cfg.Target.EchoSkip),
			target.WithLogger(s.logger.With("component", "target")),
		)
		return err
	})
	if err != nil {
		return nil, &CommandError{Command: command, ExitCode: 1, Rendered: true, Wrapped: err}
	}
	s.onClose(tgt.Close)

	var scope *scpi.Scope
	err = s.console.WithSpinner("connecting to scope "+cfg.Instrument.Address, func() error {
		client, err := scpi.Dial(ctx, cfg.Instrument.Address)
		if err != nil {
			return err
		}
		client.SetIOTimeout(cfg.Instrument.IOTimeout)
		scope = scpi.NewScope(client, cfg.Instrument.Commands)
		return scope.Configure(ctx, cfg.Instrument.SetupCommands()...)
	})
	if scope != nil {
		s.onClose(scope.Close)
	}
	if err != nil {
		return nil, &CommandError{Command: command, ExitCode: 1, Rendered: true, Wrapped: err}
	}

	return oracle.NewTimingOracle(tgt, scope, cfg.TimingConfig(),
		oracle.WithLogger(s.logger.With("component", "oracle")))
}

// simulatedOracle builds the keypad bench and an oracle over it. The
// calibration comes from the bench, the timeouts from the configuration.
func (s *session) simulatedOracle(ctx context.Context) (oracle.Oracle, *keypad.Bench, error) {
	bench, err := s.cfg.Simulator.Bench()
	if err != nil {
		return nil, nil, err
	}
	if err := bench.Configure(ctx, s.cfg.Instrument.SetupCommands()...); err != nil {
		return nil, nil, err
	}
	timing := s.cfg.TimingConfig()
	timing.Calibration = bench.Calibration()

	o, err := oracle.NewTimingOracle(bench, bench, timing,
		oracle.WithLogger(s.logger.With("component", "oracle")))
	if err != nil {
		return nil, nil, err
	}
	return o, bench, nil
}

// recover runs the cracker against o and renders the outcome.
func (s *session) recover(ctx context.Context, command string, o oracle.Oracle) (*cracker.Report, error) {
	cfg := s.cfg.Cracker
	alphabet, err := cfg.Symbols()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		cracker.WithLogger(s.logger.With("component", "cracker")),
		cracker.WithObserver(
			s.console.NewProgress(cfg.Length, s.verbose),
			s.tracker,
			cracker.NewMetricsObserver(s.metrics),
			sink.NewObserver(s.sink, s.logger.With("component", "sink")),
		),
	)

	cr, err := cracker.New(o, opts...)
	if err != nil {
		return nil, err
	}
	rep, err := cr.Recover(ctx, alphabet, cfg.Length)
	s.console.Report(rep, err)
	if err != nil {
		return rep, &CommandError{Command: command, ExitCode: 1, Rendered: true, Wrapped: err}
	}
	return rep, nil
}

// probe queries candidate repeat times and renders the statistics.
func (s *session) probe(ctx context.Context, o oracle.Oracle, candidate string, repeat int) error {
	stats, err := oracle.Probe(ctx, o, candidate, repeat)
	if stats.Count() > 0 {
		s.console.ProbeStats(stats)
	}
	if err != nil {
		return &CommandError{Command: "probe", ExitCode: 1, Wrapped: err}
	}
	return nil
}
