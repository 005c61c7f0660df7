// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package instrument

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrWaitTimeout is returned by WaitForStatus when the bound elapses.
var ErrWaitTimeout = errors.New("timed out waiting for instrument status")

const (
	// DefaultPollInterval is used when WaitForStatus receives a non-positive poll.
	DefaultPollInterval = 10 * time.Millisecond

	// MinPollInterval keeps status polling from saturating the instrument link.
	MinPollInterval = time.Millisecond
)

// WaitForStatus polls inst until it reports want.
//
// # Description
//
// Polls immediately, then every poll interval, until the instrument reports
// want, timeout elapses, or ctx is cancelled. A status error aborts the wait
// and is returned wrapped.
//
// # Inputs
//
//   - ctx: Cancellation for the whole wait
//   - inst: Instrument to poll
//   - want: Status to wait for
//   - timeout: Upper bound for the wait; must be positive
//   - poll: Interval between polls; values below MinPollInterval are raised
//
// # Outputs
//
//   - Status: The last status observed
//   - error: ErrWaitTimeout (wrapped, with the last status) when the bound
//     elapses, ctx.Err() on cancellation, or the status error
//
// # Example
//
//	last, err := instrument.WaitForStatus(ctx, scope, instrument.StatusStop, 2*time.Second, 0)
//	if errors.Is(err, instrument.ErrWaitTimeout) {
//	    log.Printf("capture never stopped, last status %s", last)
//	}
func WaitForStatus(ctx context.Context, inst Instrument, want Status, timeout, poll time.Duration) (Status, error) {
	if timeout <= 0 {
		return StatusUnknown, fmt.Errorf("wait for %s: timeout must be positive, got %s", want, timeout)
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if poll < MinPollInterval {
		poll = MinPollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	last := StatusUnknown
	for {
		status, err := inst.Status(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return last, fmt.Errorf("%w: want %s, last %s", ErrWaitTimeout, want, last)
			}
			return last, fmt.Errorf("poll status: %w", err)
		}
		last = status
		if status == want {
			return status, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, fmt.Errorf("%w: want %s, last %s", ErrWaitTimeout, want, last)
		case <-ticker.C:
		}
	}
}
