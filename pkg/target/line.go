// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package target talks to the device under test over a line-oriented link.
//
// LineTarget turns any byte stream (a serial tty, a TCP socket to a
// ser2net bridge, a pipe in tests) into one-line-in, one-line-out
// exchanges for the timing oracle.
package target

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/AleutianAI/TimingOracle/pkg/logging"
	"github.com/AleutianAI/TimingOracle/pkg/oracle"
)

// ErrClosed is returned by Exchange after the link has closed.
var ErrClosed = errors.New("target link closed")

// maxLineLength bounds a response line; the firmware's replies are short.
// Longer lines are discarded up to their terminator and reported as
// malformed with the first maxQuotedLength bytes.
const (
	maxLineLength   = 4096
	maxQuotedLength = 64
)

// Option customises a LineTarget.
type Option func(*LineTarget)

// WithLineEnding sets the terminator appended to each candidate. Default "\n".
func WithLineEnding(eol string) Option {
	return func(t *LineTarget) { t.eol = eol }
}

// WithEchoSkip ignores a response line identical to the candidate just
// sent, for firmware that echoes keypad input.
func WithEchoSkip(enabled bool) Option {
	return func(t *LineTarget) { t.skipEcho = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(t *LineTarget) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// LineTarget implements oracle.Target over an io.ReadWriteCloser.
//
// # Description
//
// A reader goroutine splits the incoming stream into lines, trimming CR and
// LF. Exchange drops any line that arrived before the candidate was sent,
// writes the candidate and waits for the next non-empty line. A response
// longer than 4096 bytes fails that Exchange with an
// *oracle.MalformedResponseError and leaves the link open.
//
// # Thread Safety
//
// Exchange calls are serialised. Close may be called from any goroutine and
// unblocks a pending Exchange.
type LineTarget struct {
	rwc      io.ReadWriteCloser
	eol      string
	skipEcho bool
	logger   *logging.Logger

	lines chan received
	done  chan struct{}

	exchangeMu sync.Mutex
	closeOnce  sync.Once
	readErr    error
	readDone   chan struct{}
}

// NewLineTarget starts reading from rwc.
func NewLineTarget(rwc io.ReadWriteCloser, opts ...Option) *LineTarget {
	t := &LineTarget{
		rwc:      rwc,
		eol:      "\n",
		logger:   logging.Discard(),
		lines:    make(chan received, 16),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.readLoop()
	return t
}

// received is one line from the link. overlong is set when the line
// exceeded maxLineLength and text holds only its head.
type received struct {
	text     string
	overlong bool
}

func (t *LineTarget) readLoop() {
	defer close(t.readDone)
	defer close(t.lines)

	r := bufio.NewReaderSize(t.rwc, maxLineLength)
	for {
		chunk, err := r.ReadSlice('\n')
		rec := received{text: strings.TrimRight(string(chunk), "\r\n")}
		if errors.Is(err, bufio.ErrBufferFull) {
			rec = received{text: string(chunk[:maxQuotedLength]), overlong: true}
			err = discardLine(r)
		}
		if len(chunk) > 0 {
			select {
			case t.lines <- rec:
			case <-t.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.readErr = err
			}
			return
		}
	}
}

// discardLine consumes r up to and including the next newline.
func discardLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// Exchange sends line and returns the next response line.
func (t *LineTarget) Exchange(ctx context.Context, line string) (string, error) {
	t.exchangeMu.Lock()
	defer t.exchangeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.drainStale()

	if _, err := io.WriteString(t.rwc, line+t.eol); err != nil {
		return "", fmt.Errorf("write candidate: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case resp, ok := <-t.lines:
			if !ok {
				return "", t.closedErr()
			}
			if resp.overlong {
				t.logger.Warn("discarded overlong target line", "head", resp.text)
				return "", &oracle.MalformedResponseError{Line: resp.text + "..."}
			}
			if strings.TrimSpace(resp.text) == "" {
				continue
			}
			if t.skipEcho && resp.text == line {
				continue
			}
			return resp.text, nil
		}
	}
}

func (t *LineTarget) drainStale() {
	for {
		select {
		case stale, ok := <-t.lines:
			if !ok {
				return
			}
			t.logger.Debug("dropping stale target line", "line", stale.text)
		default:
			return
		}
	}
}

// closedErr is called after lines has been closed, so readErr is settled.
func (t *LineTarget) closedErr() error {
	<-t.readDone
	if t.readErr != nil {
		return fmt.Errorf("%w: %w", ErrClosed, t.readErr)
	}
	return ErrClosed
}

// Close closes the link and stops the reader.
func (t *LineTarget) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.rwc.Close()
		<-t.readDone
	})
	return err
}

var _ oracle.Target = (*LineTarget)(nil)
