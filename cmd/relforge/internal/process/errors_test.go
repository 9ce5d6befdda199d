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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			name: "stderr last line",
			err:  NewCommandError("cmake --build build/Release", 2, "  warning\nerror: undefined reference\n", nil),
			want: "cmake --build build/Release (exit 2): error: undefined reference",
		},
		{
			name: "wrapped only",
			err:  NewCommandError("cpack", -1, "", errors.New("executable file not found")),
			want: "cpack (exit -1): executable file not found",
		},
		{
			name: "bare",
			err:  NewCommandError("main", 1, "", nil),
			want: "main (exit 1)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewCommandError("cmake", 1, "", inner)
	assert.ErrorIs(t, err, inner)
}

func TestExitCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("build stage: %w", NewCommandError("cmake", 7, "", nil))
	assert.Equal(t, 7, ExitCodeOf(wrapped))
	assert.Equal(t, -1, ExitCodeOf(errors.New("plain")))
	assert.Equal(t, -1, ExitCodeOf(nil))
}

func TestExtractStderr(t *testing.T) {
	inner := NewCommandError("cmake", 1, "the real cause", nil)
	outer := NewCommandError("wrapper", 1, "", inner)

	assert.Equal(t, "the real cause", ExtractStderr(fmt.Errorf("x: %w", outer)))
	assert.Equal(t, "", ExtractStderr(errors.New("plain")))
	assert.Equal(t, "", ExtractStderr(nil))
}
