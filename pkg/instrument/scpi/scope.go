// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scpi

import (
	"context"
	"fmt"

	"github.com/AleutianAI/TimingOracle/pkg/instrument"
)

// Commands is the vendor command set used by Scope.
type Commands struct {
	// Single arms one capture.
	Single string `yaml:"single"`

	// TriggerStatus queries the trigger state; replies like WAIT or STOP.
	TriggerStatus string `yaml:"trigger_status"`

	// WaveformData reads the capture buffer as a definite-length block.
	WaveformData string `yaml:"waveform_data"`
}

// RigolCommands returns the Rigol DS1000Z command set.
func RigolCommands() Commands {
	return Commands{
		Single:        ":SINGle",
		TriggerStatus: ":TRIGger:STATus?",
		WaveformData:  ":WAVeform:DATA?",
	}
}

// DefaultSetup returns the setup for a byte-format screen capture of
// channel ch with a rising-edge trigger on the same channel.
func DefaultSetup(ch int) []string {
	src := fmt.Sprintf("CHANnel%d", ch)
	return []string{
		":WAVeform:SOURce " + src,
		":WAVeform:MODE NORMal",
		":WAVeform:FORMat BYTE",
		":TRIGger:MODE EDGE",
		":TRIGger:EDGE:SOURce " + src,
		":TRIGger:EDGE:SLOPe POSitive",
	}
}

// Scope implements instrument.Instrument over a SCPI client.
type Scope struct {
	client   *Client
	commands Commands
}

// NewScope creates a scope adapter. Empty command fields take the Rigol
// defaults.
func NewScope(client *Client, commands Commands) *Scope {
	def := RigolCommands()
	if commands.Single == "" {
		commands.Single = def.Single
	}
	if commands.TriggerStatus == "" {
		commands.TriggerStatus = def.TriggerStatus
	}
	if commands.WaveformData == "" {
		commands.WaveformData = def.WaveformData
	}
	return &Scope{client: client, commands: commands}
}

// Configure sends each command in order and stops at the first failure.
func (s *Scope) Configure(ctx context.Context, commands ...string) error {
	for _, cmd := range commands {
		if err := s.client.Write(ctx, cmd); err != nil {
			return fmt.Errorf("configure scope: %w", err)
		}
	}
	return nil
}

// Arm starts a single capture.
func (s *Scope) Arm(ctx context.Context) error {
	return s.client.Write(ctx, s.commands.Single)
}

// Status polls the trigger state.
func (s *Scope) Status(ctx context.Context) (instrument.Status, error) {
	reply, err := s.client.Query(ctx, s.commands.TriggerStatus)
	if err != nil {
		return instrument.StatusUnknown, err
	}
	return instrument.ParseStatus(reply), nil
}

// ReadSamples reads the capture buffer.
func (s *Scope) ReadSamples(ctx context.Context) ([]byte, error) {
	return s.client.QueryBlock(ctx, s.commands.WaveformData)
}

// Close closes the underlying connection.
func (s *Scope) Close() error {
	return s.client.Close()
}

var _ instrument.Instrument = (*Scope)(nil)
