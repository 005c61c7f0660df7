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
	"errors"
	"fmt"
)

// CommandError wraps a subcommand failure with its exit code.
//
// # Description
//
// Rendered is set when the command already printed the failure (for
// example the run report of an exhausted recovery), so that execute does
// not print it a second time.
//
// # Example
//
//	return &CommandError{Command: "crack", ExitCode: 1, Rendered: true, Wrapped: err}
type CommandError struct {
	// Command is the subcommand that failed.
	Command string

	// ExitCode is the process exit status.
	ExitCode int

	// Rendered reports whether the failure was already shown to the user.
	Rendered bool

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns a formatted error message.
func (e *CommandError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Command, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// exitCode maps an error from a command to a process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode != 0 {
		return cmdErr.ExitCode
	}
	return 1
}

// rendered reports whether err has already been printed.
func rendered(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr) && cmdErr.Rendered
}
