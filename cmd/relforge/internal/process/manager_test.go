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
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// =============================================================================
// DefaultProcessManager Tests
// =============================================================================

func TestDefaultProcessManager_Stream_MissingExecutable(t *testing.T) {
	pm := &DefaultProcessManager{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	err := pm.Stream(context.Background(), "", "relforge-no-such-tool-xyz")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, -1, cmdErr.ExitCode)
	assert.NotNil(t, cmdErr.Unwrap())
	assert.Equal(t, -1, ExitCodeOf(err))
}

func TestDefaultProcessManager_Stream_ForwardsOutputAndKeepsStderr(t *testing.T) {
	requireShell(t)
	var stdout, stderr bytes.Buffer
	pm := &DefaultProcessManager{Stdout: &stdout, Stderr: &stderr}
	dir := t.TempDir()

	err := pm.Stream(context.Background(), dir, "sh", "-c", "pwd; echo warn >&2; exit 2")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 2, cmdErr.ExitCode)
	assert.Equal(t, "warn", cmdErr.Stderr)
	assert.Contains(t, stderr.String(), "warn")
	assert.NotEmpty(t, strings.TrimSpace(stdout.String()))
}

func TestDefaultProcessManager_Stream_Cancelled(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pm := &DefaultProcessManager{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}

	err := pm.Stream(ctx, "", "sh", "-c", "sleep 5")

	require.Error(t, err)
}

func TestDefaultProcessManager_Attach_UsesStdin(t *testing.T) {
	requireShell(t)
	var stdout bytes.Buffer
	pm := &DefaultProcessManager{
		Stdin:  strings.NewReader("ping\n"),
		Stdout: &stdout,
		Stderr: &bytes.Buffer{},
	}

	err := pm.Attach(context.Background(), "", "sh", "-c", "read line; echo got:$line")

	require.NoError(t, err)
	assert.Equal(t, "got:ping\n", stdout.String())
}

func TestTailBuffer_KeepsLastBytes(t *testing.T) {
	tb := newTailBuffer(4)
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"cmake", []string{"--build", "build/Release"}, "cmake --build build/Release"},
		{"cmake", []string{"-S", "/my project"}, `cmake -S "/my project"`},
		{"gdb", []string{""}, `gdb ""`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCommand(tt.name, tt.args))
		})
	}
}

// =============================================================================
// MockProcessManager Tests
// =============================================================================

func TestMockProcessManager_RecordsCalls(t *testing.T) {
	mock := &MockProcessManager{}
	ctx := context.Background()

	_ = mock.Stream(ctx, "", "cmake", "-S", ".", "-B", "build/Debug")
	_ = mock.Stream(ctx, "build/Debug", "cmake", "--build", "build/Debug")
	_ = mock.Attach(ctx, "build/Debug", "gdb", "-ex", "run")

	require.Len(t, mock.Calls, 3)
	assert.Equal(t, Call{Method: "Stream", Dir: "build/Debug", Name: "cmake", Args: []string{"--build", "build/Debug"}}, mock.Calls[1])
	assert.Len(t, mock.CallsTo("cmake"), 2)
	assert.Len(t, mock.CallsTo("gdb"), 1)
}

func TestMockProcessManager_DelegatesToFuncs(t *testing.T) {
	want := errors.New("nope")
	mock := &MockProcessManager{
		StreamFunc: func(ctx context.Context, dir, name string, args ...string) error { return want },
	}

	assert.ErrorIs(t, mock.Stream(context.Background(), "", "cmake"), want)
	assert.NoError(t, mock.Attach(context.Background(), "", "gdb"))
}
