// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scpi adapts SCPI-over-TCP oscilloscopes to instrument.Instrument.
//
// Commands are newline-terminated ASCII. Replies are either a single
// newline-terminated line or an IEEE 488.2 definite-length block:
//
//	#<N><len: N digits><len bytes of data>\n
//
// The default command set follows the Rigol DS1000Z family; other vendors
// are supported by overriding Commands and the setup list.
package scpi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPort is the raw SCPI socket port used by most LAN scopes.
const DefaultPort = "5555"

// DefaultIOTimeout bounds a single exchange when ctx has no deadline.
const DefaultIOTimeout = 5 * time.Second

// MaxBlockSize rejects block headers announcing absurd lengths.
const MaxBlockSize = 64 << 20

// ErrBadBlock is returned for a malformed definite-length block header.
var ErrBadBlock = errors.New("scpi: malformed block")

// Client is a SCPI connection.
//
// # Thread Safety
//
// Safe for concurrent use; exchanges are serialised so a reply is always
// read by the goroutine that sent the query.
type Client struct {
	conn      net.Conn
	r         *bufio.Reader
	ioTimeout time.Duration

	mu sync.Mutex
}

// Dial connects to addr. A missing port defaults to DefaultPort.
func Dial(ctx context.Context, addr string) (*Client, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial scope %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn:      conn,
		r:         bufio.NewReaderSize(conn, 64<<10),
		ioTimeout: DefaultIOTimeout,
	}
}

// SetIOTimeout changes the bound used when ctx has no deadline. Values
// <= 0 restore DefaultIOTimeout.
func (c *Client) SetIOTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		d = DefaultIOTimeout
	}
	c.ioTimeout = d
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Write sends cmd without reading a reply.
func (c *Client) Write(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.exchange(ctx, func() error {
		return c.send(cmd)
	})
}

// Query sends cmd and returns the reply line without its terminator.
func (c *Client) Query(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var reply string
	err := c.exchange(ctx, func() error {
		if err := c.send(cmd); err != nil {
			return err
		}
		line, err := c.r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read reply to %s: %w", cmd, err)
		}
		reply = strings.TrimRight(line, "\r\n")
		return nil
	})
	return reply, err
}

// QueryBlock sends cmd and returns the payload of the definite-length
// block reply.
func (c *Client) QueryBlock(ctx context.Context, cmd string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.exchange(ctx, func() error {
		if err := c.send(cmd); err != nil {
			return err
		}
		var err error
		data, err = readBlock(c.r)
		if err != nil {
			return fmt.Errorf("read block reply to %s: %w", cmd, err)
		}
		return nil
	})
	return data, err
}

// exchange runs fn with the connection deadline tied to ctx. Callers hold c.mu.
func (c *Client) exchange(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(c.ioTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	// Drop a late reply left over from a timed-out exchange.
	if n := c.r.Buffered(); n > 0 {
		_, _ = c.r.Discard(n)
	}

	err := fn()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

func (c *Client) send(cmd string) error {
	if _, err := io.WriteString(c.conn, cmd+"\n"); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// readBlock parses an IEEE 488.2 definite-length block and consumes the
// trailing newline if present.
func readBlock(r *bufio.Reader) ([]byte, error) {
	hash, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if hash != '#' {
		return nil, fmt.Errorf("%w: expected '#', got %q", ErrBadBlock, hash)
	}
	nd, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if nd < '1' || nd > '9' {
		return nil, fmt.Errorf("%w: bad length digit count %q", ErrBadBlock, nd)
	}
	digits := make([]byte, int(nd-'0'))
	if _, err := io.ReadFull(r, digits); err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: bad length %q", ErrBadBlock, digits)
	}
	if n > MaxBlockSize {
		return nil, fmt.Errorf("%w: length %d exceeds limit", ErrBadBlock, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	if b, err := r.Peek(1); err == nil && b[0] == '\n' {
		_, _ = r.ReadByte()
	}
	return data, nil
}
