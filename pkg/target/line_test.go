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
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/TimingOracle/pkg/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFirmware answers each received line with reply(line) until the pipe
// closes. It records the raw lines it saw.
func fakeFirmware(t *testing.T, conn net.Conn, reply func(string) string) <-chan []string {
	t.Helper()
	seen := make(chan []string, 1)
	go func() {
		var lines []string
		defer func() { seen <- lines }()
		r := bufio.NewReader(conn)
		for {
			raw, err := r.ReadString('\n')
			if err != nil {
				return
			}
			lines = append(lines, raw)
			if out := reply(strings.TrimRight(raw, "\r\n")); out != "" {
				if _, err := io.WriteString(conn, out); err != nil {
					return
				}
			}
		}
	}()
	return seen
}

func newPipeTarget(t *testing.T, reply func(string) string, opts ...Option) (*LineTarget, net.Conn, <-chan []string) {
	t.Helper()
	host, device := net.Pipe()
	seen := fakeFirmware(t, device, reply)
	lt := NewLineTarget(host, opts...)
	t.Cleanup(func() {
		_ = lt.Close()
		_ = device.Close()
	})
	return lt, device, seen
}

func TestLineTarget_Exchange(t *testing.T) {
	lt, device, seen := newPipeTarget(t, func(line string) string {
		if line == "424344" {
			return "Good password\r\n"
		}
		return "Wrong password\r\n"
	})

	resp, err := lt.Exchange(context.Background(), "12")
	require.NoError(t, err)
	assert.Equal(t, "Wrong password", resp, "CR and LF are trimmed")

	resp, err = lt.Exchange(context.Background(), "424344")
	require.NoError(t, err)
	assert.Equal(t, "Good password", resp)

	require.NoError(t, lt.Close())
	_ = device.Close()
	assert.Equal(t, []string{"12\n", "424344\n"}, <-seen)
}

func TestLineTarget_LineEnding(t *testing.T) {
	lt, device, seen := newPipeTarget(t, func(string) string { return "Wrong password\n" },
		WithLineEnding("\r\n"))

	_, err := lt.Exchange(context.Background(), "7")
	require.NoError(t, err)

	require.NoError(t, lt.Close())
	_ = device.Close()
	assert.Equal(t, []string{"7\r\n"}, <-seen)
}

func TestLineTarget_DropsStaleLines(t *testing.T) {
	host, device := net.Pipe()
	lt := NewLineTarget(host)
	defer func() {
		_ = lt.Close()
		_ = device.Close()
	}()

	_, err := io.WriteString(device, "keypad ready\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(lt.lines) == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(device)
		if _, err := r.ReadString('\n'); err == nil {
			_, _ = io.WriteString(device, "Wrong password\n")
		}
	}()

	resp, err := lt.Exchange(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Wrong password", resp, "the banner that arrived before the candidate is not its response")
	<-done
}

func TestLineTarget_SkipsBlankAndEcho(t *testing.T) {
	lt, _, _ := newPipeTarget(t, func(line string) string {
		return "\r\n" + line + "\r\nWrong password\r\n"
	}, WithEchoSkip(true))

	resp, err := lt.Exchange(context.Background(), "55")
	require.NoError(t, err)
	assert.Equal(t, "Wrong password", resp)
}

func TestLineTarget_EchoReturnedWithoutSkip(t *testing.T) {
	lt, _, _ := newPipeTarget(t, func(line string) string { return line + "\n" })

	resp, err := lt.Exchange(context.Background(), "55")
	require.NoError(t, err)
	assert.Equal(t, "55", resp)
}

func TestLineTarget_OverlongLine(t *testing.T) {
	calls := 0
	lt, _, _ := newPipeTarget(t, func(string) string {
		calls++
		if calls == 1 {
			return strings.Repeat("x", 5000) + "\r\n"
		}
		return "Wrong password\r\n"
	})

	_, err := lt.Exchange(context.Background(), "1")
	require.ErrorIs(t, err, oracle.ErrMalformedResponse)
	var malformed *oracle.MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, strings.Repeat("x", maxQuotedLength)+"...", malformed.Line)

	resp, err := lt.Exchange(context.Background(), "2")
	require.NoError(t, err, "the link stays open after an overlong line")
	assert.Equal(t, "Wrong password", resp)
}

func TestLineTarget_Deadline(t *testing.T) {
	lt, _, _ := newPipeTarget(t, func(string) string { return "" })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := lt.Exchange(ctx, "1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLineTarget_CancelledBeforeSend(t *testing.T) {
	lt, device, seen := newPipeTarget(t, func(string) string { return "Wrong password\n" })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lt.Exchange(ctx, "1")
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, lt.Close())
	_ = device.Close()
	assert.Empty(t, <-seen, "nothing is written once the context is done")
}

func TestLineTarget_PeerClosed(t *testing.T) {
	host, device := net.Pipe()
	lt := NewLineTarget(host)
	defer func() { _ = lt.Close() }()

	go func() {
		r := bufio.NewReader(device)
		_, _ = r.ReadString('\n')
		_ = device.Close()
	}()

	_, err := lt.Exchange(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClosed) || errors.Is(err, io.ErrClosedPipe), "got %v", err)
}

func TestLineTarget_CloseUnblocksExchange(t *testing.T) {
	lt, _, _ := newPipeTarget(t, func(string) string { return "" })

	errc := make(chan error, 1)
	go func() {
		_, err := lt.Exchange(context.Background(), "1")
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, lt.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Exchange did not return after Close")
	}
	assert.NoError(t, lt.Close(), "Close is idempotent")
}

func TestOpen_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
			if _, err := io.WriteString(conn, "Wrong password\n"); err != nil {
				return
			}
		}
	}()

	lt, err := Open(context.Background(), "tcp://"+ln.Addr().String(), 0)
	require.NoError(t, err)
	defer lt.Close()

	resp, err := lt.Exchange(context.Background(), "0")
	require.NoError(t, err)
	assert.Equal(t, "Wrong password", resp)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), "/dev/does-not-exist-timingoracle", 115200)
	assert.Error(t, err)

	_, err = Open(context.Background(), "/dev/null", 12345)
	assert.ErrorContains(t, err, "unsupported baud rate 12345")

	_, err = Open(context.Background(), "/dev/null", 115200)
	assert.ErrorContains(t, err, "serial /dev/null", "not a tty")
}

func TestSupportedBauds(t *testing.T) {
	bauds := SupportedBauds()
	assert.True(t, slices.IsSorted(bauds))
	assert.Contains(t, bauds, DefaultBaud)

	bauds[0] = 1
	assert.Equal(t, 9600, SupportedBauds()[0], "callers get a copy")
}
