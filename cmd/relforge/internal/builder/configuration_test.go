// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
)

func TestParseBuildType(t *testing.T) {
	for _, bt := range ValidBuildTypes {
		got, err := ParseBuildType(string(bt))
		require.NoError(t, err)
		assert.Equal(t, bt, got)
	}

	for _, bad := range []string{"", "release", "Fast", "Debug "} {
		_, err := ParseBuildType(bad)
		assert.ErrorIs(t, err, ErrInvalidBuildType, bad)
		assert.ErrorIs(t, err, config.ErrConfiguration, bad)
	}
}

func TestNewConfiguration_BuildTypeResolution(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want BuildType
	}{
		{"default is release", Options{}, Release},
		{"configured default", Options{DefaultType: MinSizeRel}, MinSizeRel},
		{"debug flag forces debug", Options{Debug: true, DefaultType: MinSizeRel}, Debug},
		{"explicit wins over debug", Options{Debug: true, BuildType: "RelWithDebInfo"}, RelWithDebInfo},
		{"with-debugger keeps default", Options{WithDebugger: true}, Release},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConfiguration(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.BuildType())
		})
	}
}

func TestNewConfiguration_Invalid(t *testing.T) {
	_, err := NewConfiguration(Options{BuildType: "Turbo"})
	assert.True(t, errors.Is(err, ErrInvalidBuildType))
	assert.Contains(t, err.Error(), "Turbo")

	_, err = NewConfiguration(Options{DefaultType: "nope"})
	assert.ErrorIs(t, err, ErrInvalidBuildType)
}

func TestConfiguration_DebuggerFlags(t *testing.T) {
	c, err := NewConfiguration(Options{Debug: true})
	require.NoError(t, err)
	assert.True(t, c.AttachDebugger())

	c, err = NewConfiguration(Options{WithDebugger: true})
	require.NoError(t, err)
	assert.True(t, c.AttachDebugger())
	assert.Equal(t, Release, c.BuildType())

	c, err = NewConfiguration(Options{})
	require.NoError(t, err)
	assert.False(t, c.AttachDebugger())
}

func TestConfiguration_PostBuildAction(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want PostBuildAction
	}{
		{"run by default", Options{}, ActionRun},
		{"package wins over run", Options{Package: true}, ActionPackage},
		{"package with no-run", Options{Package: true, NoRun: true}, ActionPackage},
		{"no-run", Options{NoRun: true}, ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConfiguration(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.PostBuildAction())
		})
	}
}

func TestConfiguration_CompileOnly(t *testing.T) {
	c, err := NewConfiguration(Options{Package: true, ClearBuild: true, Reconfigure: true})
	require.NoError(t, err)

	co := c.CompileOnly()
	assert.Equal(t, ActionNone, co.PostBuildAction())
	assert.False(t, co.ClearBuild())
	assert.True(t, co.Reconfigure())
	assert.Equal(t, ActionPackage, c.PostBuildAction())
}

func TestPostBuildAction_String(t *testing.T) {
	assert.Equal(t, "package", ActionPackage.String())
	assert.Equal(t, "run", ActionRun.String())
	assert.Equal(t, "none", ActionNone.String())
}
