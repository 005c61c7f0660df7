// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the timingoracle configuration file schema, its
// defaults and its loading rules.
package config

import (
	"fmt"
	"io"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/cracker"
	"github.com/AleutianAI/TimingOracle/pkg/instrument/scpi"
	"github.com/AleutianAI/TimingOracle/pkg/keypad"
	"github.com/AleutianAI/TimingOracle/pkg/logging"
	"github.com/AleutianAI/TimingOracle/pkg/oracle"
	"github.com/AleutianAI/TimingOracle/pkg/sink"
	"github.com/AleutianAI/TimingOracle/pkg/telemetry"
)

// TimingOracleConfig is the root of ~/.timingoracle/config.yaml.
type TimingOracleConfig struct {
	// Target: the serial link to the keypad firmware
	Target TargetConfig `yaml:"target"`

	// Instrument: the scope watching the comparison GPIO
	Instrument InstrumentConfig `yaml:"instrument"`

	// Cracker: alphabet, length and sampling of a run
	Cracker CrackerConfig `yaml:"cracker"`

	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Status    StatusConfig     `yaml:"status"`
	Sink      SinkConfig       `yaml:"sink"`

	// Simulator: the bench used by `simulate` and `probe --simulate`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// TargetConfig locates the keypad firmware link.
type TargetConfig struct {
	// Address is a device path (/dev/ttyUSB0) or tcp://host:port.
	Address    string `yaml:"address" validate:"required"`
	Baud       int    `yaml:"baud" validate:"omitempty,oneof=9600 19200 38400 57600 115200 230400 460800 921600"`
	LineEnding string `yaml:"line_ending" validate:"omitempty,oneof=lf crlf cr"`
	EchoSkip   bool   `yaml:"echo_skip"`
}

// EOL returns the byte sequence for LineEnding.
func (c TargetConfig) EOL() string {
	switch c.LineEnding {
	case "crlf":
		return "\r\n"
	case "cr":
		return "\r"
	default:
		return "\n"
	}
}

// InstrumentConfig addresses the oscilloscope and holds the calibration and
// timeouts of each query.
type InstrumentConfig struct {
	// Address is host[:port] of the scope's SCPI socket. Port 5555 is
	// assumed when omitted.
	Address string `yaml:"address" validate:"required"`

	// Channel is the probe channel, used to build the default setup.
	Channel int `yaml:"channel" validate:"min=1,max=4"`

	// Setup replaces the default setup commands when non-empty.
	Setup []string `yaml:"setup,omitempty"`

	Commands scpi.Commands `yaml:"commands"`

	// Threshold and Divisor calibrate raw samples into a measurement.
	Threshold int     `yaml:"threshold" validate:"min=0,max=255"`
	Divisor   float64 `yaml:"divisor" validate:"gt=0"`

	IOTimeout       time.Duration `yaml:"io_timeout" validate:"gte=0"`
	ArmTimeout      time.Duration `yaml:"arm_timeout" validate:"gte=0"`
	CaptureTimeout  time.Duration `yaml:"capture_timeout" validate:"gte=0"`
	ResponseTimeout time.Duration `yaml:"response_timeout" validate:"gte=0"`
	PollInterval    time.Duration `yaml:"poll_interval" validate:"gte=0"`
}

// SetupCommands returns Setup, or the default setup for Channel.
func (c InstrumentConfig) SetupCommands() []string {
	if len(c.Setup) > 0 {
		return c.Setup
	}
	return scpi.DefaultSetup(c.Channel)
}

// Calibration returns the sample calibration.
func (c InstrumentConfig) Calibration() oracle.Calibration {
	return oracle.Calibration{Threshold: byte(c.Threshold), Divisor: c.Divisor}
}

// TimingConfig assembles the oracle configuration.
func (c TimingOracleConfig) TimingConfig() oracle.TimingConfig {
	return oracle.TimingConfig{
		Calibration:      c.Instrument.Calibration(),
		ArmTimeout:       c.Instrument.ArmTimeout,
		CaptureTimeout:   c.Instrument.CaptureTimeout,
		ResponseTimeout:  c.Instrument.ResponseTimeout,
		PollInterval:     c.Instrument.PollInterval,
		MinQueryInterval: c.Cracker.MinQueryInterval,
	}
}

// CrackerConfig describes the secret space and how candidates are scored.
type CrackerConfig struct {
	Alphabet string `yaml:"alphabet" validate:"required"`
	Length   int    `yaml:"length" validate:"min=1"`

	// Pad right-pads every trial to Length with this symbol. Empty
	// disables padding.
	Pad string `yaml:"pad,omitempty" validate:"omitempty,len=1"`

	Sampling SamplingConfig `yaml:"sampling"`

	// MinQueryInterval spaces query starts to let the firmware settle.
	MinQueryInterval time.Duration `yaml:"min_query_interval" validate:"gte=0"`
}

// SamplingConfig selects the reduction over repeated measurements.
type SamplingConfig struct {
	Strategy string `yaml:"strategy" validate:"omitempty,oneof=single mean median"`
	Samples  int    `yaml:"samples" validate:"min=1"`
}

// Symbols parses the configured alphabet.
func (c CrackerConfig) Symbols() (cracker.Alphabet, error) {
	return cracker.NewAlphabet(c.Alphabet)
}

// Options returns the cracker options for the sampling and padding settings.
func (c CrackerConfig) Options() ([]cracker.Option, error) {
	policy, err := cracker.ParsePolicy(c.Sampling.Strategy, c.Sampling.Samples)
	if err != nil {
		return nil, err
	}
	opts := []cracker.Option{cracker.WithPolicy(policy)}
	if c.Pad != "" {
		opts = append(opts, cracker.WithPadding([]rune(c.Pad)[0]))
	}
	return opts, nil
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`

	// Dir enables a JSON log file per day in this directory.
	Dir string `yaml:"dir,omitempty"`
}

// Logger builds the process logger writing to w, or stderr when w is nil.
func (c LoggingConfig) Logger(service string, w io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  c.Dir,
		Service: service,
		JSON:    c.JSON,
		Writer:  w,
	}), nil
}

// StatusConfig configures the HTTP status server.
type StatusConfig struct {
	// Listen enables the status server, e.g. "127.0.0.1:8089".
	Listen string `yaml:"listen,omitempty" validate:"omitempty,hostname_port"`
}

// SinkConfig selects where measurements are exported. The zero value exports
// nothing.
type SinkConfig struct {
	Influx *sink.InfluxConfig `yaml:"influx,omitempty"`
}

// SimulatorConfig drives the simulated keypad bench used by simulate and probe --simulate.
type SimulatorConfig struct {
	Secret         string        `yaml:"secret" validate:"required"`
	BaseTicks      int           `yaml:"base_ticks" validate:"min=0"`
	TicksPerSymbol int           `yaml:"ticks_per_symbol" validate:"min=1"`
	AcceptPrefix   bool          `yaml:"accept_prefix"`
	Jitter         float64       `yaml:"jitter" validate:"gte=0"`
	Seed           uint64        `yaml:"seed"`
	Latency        time.Duration `yaml:"latency" validate:"gte=0"`

	// HangCapture keeps the simulated trigger waiting forever.
	HangCapture bool `yaml:"hang_capture,omitempty"`
}

// Bench builds the simulated keypad bench.
func (c SimulatorConfig) Bench() (*keypad.Bench, error) {
	lock, err := keypad.NewLock(c.Secret,
		keypad.WithTicks(c.BaseTicks, c.TicksPerSymbol),
		keypad.WithAcceptPrefix(c.AcceptPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	return keypad.NewBench(lock, keypad.BenchConfig{
		Jitter:      c.Jitter,
		Seed:        c.Seed,
		Latency:     c.Latency,
		HangCapture: c.HangCapture,
	}), nil
}

// DefaultConfig returns the configuration written by `config init`.
func DefaultConfig() TimingOracleConfig {
	timing := oracle.DefaultTimingConfig()
	return TimingOracleConfig{
		Target: TargetConfig{
			Address:    "/dev/ttyUSB0",
			Baud:       115200,
			LineEnding: "lf",
		},
		Instrument: InstrumentConfig{
			Address:         "192.168.1.50:5555",
			Channel:         1,
			Commands:        scpi.RigolCommands(),
			Threshold:       int(timing.Calibration.Threshold),
			Divisor:         timing.Calibration.Divisor,
			IOTimeout:       scpi.DefaultIOTimeout,
			ArmTimeout:      timing.ArmTimeout,
			CaptureTimeout:  timing.CaptureTimeout,
			ResponseTimeout: timing.ResponseTimeout,
			PollInterval:    timing.PollInterval,
		},
		Cracker: CrackerConfig{
			Alphabet: cracker.DigitsSymbols,
			Length:   6,
			Sampling: SamplingConfig{Strategy: "single", Samples: 1},
		},
		Logging:   LoggingConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
		Simulator: SimulatorConfig{
			Secret:         "424344",
			BaseTicks:      keypad.DefaultBaseTicks,
			TicksPerSymbol: keypad.DefaultTicksPerSymbol,
		},
	}
}
