// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package target

import (
	"fmt"
	"io"
	"slices"

	"go.bug.st/serial"
)

var supportedBauds = []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}

// SupportedBauds lists the accepted serial speeds in ascending order.
func SupportedBauds() []int {
	return slices.Clone(supportedBauds)
}

// OpenSerial opens device in raw 8N1 mode at baud.
//
// # Description
//
// The port has no flow control and no read timeout, so a read blocks until
// a byte arrives or the port is closed. The input queue is flushed so that
// no stale bytes reach the first exchange.
//
// # Outputs
//
//   - io.ReadWriteCloser: The open port
//   - error: Non-nil for an unsupported baud rate or a port that cannot be
//     opened; port errors unwrap to *serial.PortError
func OpenSerial(device string, baud int) (io.ReadWriteCloser, error) {
	if !slices.Contains(supportedBauds, baud) {
		return nil, fmt.Errorf("open serial %s: unsupported baud rate %d (supported: %v)", device, baud, supportedBauds)
	}

	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("flush serial %s: %w", device, err)
	}
	return port, nil
}
