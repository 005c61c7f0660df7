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
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultBaud is the serial speed of the keypad firmware.
const DefaultBaud = 115200

// Open connects to addr.
//
// # Inputs
//
//   - ctx: Bounds the TCP dial
//   - addr: "tcp://host:port" for a network serial bridge, otherwise a
//     serial device path such as /dev/ttyUSB0
//   - baud: Serial speed; ignored for TCP, zero means DefaultBaud
//   - opts: LineTarget options
//
// # Outputs
//
//   - *LineTarget: Connected target; Close it when done
//   - error: Non-nil if the link cannot be opened
func Open(ctx context.Context, addr string, baud int, opts ...Option) (*LineTarget, error) {
	if hostPort, ok := strings.CutPrefix(addr, "tcp://"); ok {
		d := net.Dialer{Timeout: 5 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", hostPort)
		if err != nil {
			return nil, fmt.Errorf("dial target %s: %w", hostPort, err)
		}
		return NewLineTarget(conn, opts...), nil
	}

	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := OpenSerial(addr, baud)
	if err != nil {
		return nil, err
	}
	return NewLineTarget(port, opts...), nil
}
