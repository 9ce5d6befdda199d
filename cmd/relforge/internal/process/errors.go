// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Command Error Type
// =============================================================================

// CommandError is the failure of one external command.
//
// # Description
//
// Carries the rendered argv, the exit code and whatever stderr was captured.
// The pipeline treats every CommandError as fatal; the fields exist only for
// the operator's diagnostic.
//
// # Example
//
//	err := NewCommandError("cmake --build build/Release -j 8", 2, "ld: symbol not found", nil)
//	fmt.Println(err) // "cmake --build build/Release -j 8 (exit 2): ld: symbol not found"
type CommandError struct {
	// Command is the rendered command line.
	Command string

	// ExitCode is the process exit code (-1 if the process never ran or
	// was killed by a signal).
	ExitCode int

	// Stderr is the trimmed tail of standard error.
	Stderr string

	// Wrapped is the underlying exec error (may be nil).
	Wrapped error
}

// Error returns "<command> (exit N)" followed by the last stderr line when
// present, otherwise the wrapped error.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, lastLine(e.Stderr))
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr reports whether stderr output was captured.
func (e *CommandError) HasStderr() bool {
	return e.Stderr != ""
}

var _ error = (*CommandError)(nil)

// NewCommandError creates a CommandError. Stderr is trimmed.
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

// ExitCodeOf returns the exit code of the first CommandError in err's chain,
// or -1 when there is none.
func ExitCodeOf(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}

// ExtractStderr returns the stderr of the first CommandError in err's chain
// that has any, or "".
func ExtractStderr(err error) string {
	for err != nil {
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) {
			return ""
		}
		if cmdErr.HasStderr() {
			return cmdErr.Stderr
		}
		err = cmdErr.Unwrap()
	}
	return ""
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
