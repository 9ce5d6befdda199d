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
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// ProcessManager handles external process operations.
//
// Every method blocks until the child exits. A non-zero exit is reported as
// a *CommandError; output content is never interpreted.
type ProcessManager interface {
	// Stream executes a command in dir with stdout/stderr forwarded to the
	// manager's writers while it runs. Used for long build tool output.
	//
	// # Inputs
	//
	//   - ctx: Cancelling ctx kills the child
	//   - dir: Working directory ("" for the current one)
	//   - name: Executable name or path
	//   - args: Argument vector
	//
	// # Outputs
	//
	//   - error: *CommandError carrying the last few KiB of stderr
	Stream(ctx context.Context, dir, name string, args ...string) error

	// Attach executes a command with the terminal's stdin, stdout and stderr.
	// Used for running the built program and interactive debuggers.
	Attach(ctx context.Context, dir, name string, args ...string) error
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// stderrTailSize bounds how much stderr a streamed CommandError keeps.
const stderrTailSize = 4096

// DefaultProcessManager implements ProcessManager using os/exec.
type DefaultProcessManager struct {
	// Stdout receives streamed standard output. Default: os.Stdout.
	Stdout io.Writer

	// Stderr receives streamed standard error. Default: os.Stderr.
	Stderr io.Writer

	// Stdin is attached in Attach. Default: os.Stdin.
	Stdin io.Reader
}

// NewDefaultProcessManager creates a ProcessManager bound to the terminal.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Stdin:  os.Stdin,
	}
}

// Stream executes a command in dir, forwarding its output as it is produced.
func (pm *DefaultProcessManager) Stream(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	tail := newTailBuffer(stderrTailSize)
	cmd.Stdout = orDefault(pm.Stdout, os.Stdout)
	cmd.Stderr = io.MultiWriter(orDefault(pm.Stderr, os.Stderr), tail)

	if err := cmd.Run(); err != nil {
		return commandErrorFrom(err, name, args, tail.String())
	}
	return nil
}

// Attach executes a command with stdin, stdout and stderr connected.
func (pm *DefaultProcessManager) Attach(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = pm.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = orDefault(pm.Stdout, os.Stdout)
	cmd.Stderr = orDefault(pm.Stderr, os.Stderr)

	if err := cmd.Run(); err != nil {
		return commandErrorFrom(err, name, args, "")
	}
	return nil
}

// commandErrorFrom converts an exec error into a *CommandError.
// Exit code is -1 when the process never started or was killed by a signal.
func commandErrorFrom(err error, name string, args []string, stderr string) *CommandError {
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return NewCommandError(FormatCommand(name, args), exitCode, stderr, err)
}

// FormatCommand renders an argv for diagnostics. The result is for humans;
// it is never handed to a shell.
func FormatCommand(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

func orDefault(w io.Writer, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}

// tailBuffer keeps only the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessManager is a test double for ProcessManager.
//
// Unset function fields succeed with empty output, so tests only configure
// the calls they want to fail or inspect.
//
// # Examples
//
//	mock := &MockProcessManager{
//	    StreamFunc: func(ctx context.Context, dir, name string, args ...string) error {
//	        if args[0] == "--build" {
//	            return NewCommandError("cmake --build", 2, "undefined reference", nil)
//	        }
//	        return nil
//	    },
//	}
type MockProcessManager struct {
	StreamFunc func(ctx context.Context, dir, name string, args ...string) error
	AttachFunc func(ctx context.Context, dir, name string, args ...string) error

	// Calls records all method invocations in order.
	Calls []Call

	mu sync.Mutex
}

// Call records a single ProcessManager invocation.
type Call struct {
	Method string
	Dir    string
	Name   string
	Args   []string
}

// Stream records the call and delegates to StreamFunc.
func (m *MockProcessManager) Stream(ctx context.Context, dir, name string, args ...string) error {
	m.record("Stream", dir, name, args)
	if m.StreamFunc == nil {
		return nil
	}
	return m.StreamFunc(ctx, dir, name, args...)
}

// Attach records the call and delegates to AttachFunc.
func (m *MockProcessManager) Attach(ctx context.Context, dir, name string, args ...string) error {
	m.record("Attach", dir, name, args)
	if m.AttachFunc == nil {
		return nil
	}
	return m.AttachFunc(ctx, dir, name, args...)
}

// CallsTo returns the recorded calls whose executable is name.
func (m *MockProcessManager) CallsTo(name string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.Calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockProcessManager) record(method, dir, name string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{
		Method: method,
		Dir:    dir,
		Name:   name,
		Args:   append([]string(nil), args...),
	})
}

// Compile-time interface satisfaction checks
var (
	_ ProcessManager = (*DefaultProcessManager)(nil)
	_ ProcessManager = (*MockProcessManager)(nil)
)
