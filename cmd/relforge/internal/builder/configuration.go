// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package builder drives the external CMake toolchain for one build type.
//
// # Overview
//
// A Configuration is resolved once per invocation from command-line options.
// The Driver then:
//
//  1. prepares build/<type> (optionally clearing it)
//  2. configures with cmake when asked, or when the directory was never configured
//  3. compiles with cmake --build and records the elapsed time
//  4. performs exactly one post-build action: package, run, or nothing
//
// Every tool is invoked from an argument vector through
// process.ProcessManager. A non-zero exit aborts the pipeline with a
// *StageError naming the stage; output is never interpreted.
package builder

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
)

// =============================================================================
// Build Types
// =============================================================================

// BuildType is a CMake build configuration.
type BuildType string

const (
	Release        BuildType = "Release"
	Debug          BuildType = "Debug"
	RelWithDebInfo BuildType = "RelWithDebInfo"
	MinSizeRel     BuildType = "MinSizeRel"
)

// ValidBuildTypes lists the accepted build types in display order.
var ValidBuildTypes = []BuildType{Release, Debug, RelWithDebInfo, MinSizeRel}

// ErrInvalidBuildType is returned for a build type outside ValidBuildTypes.
// It matches config.ErrConfiguration.
var ErrInvalidBuildType = fmt.Errorf("%w: invalid build type", config.ErrConfiguration)

// ParseBuildType validates s. Matching is exact, as CMake's is.
func ParseBuildType(s string) (BuildType, error) {
	for _, bt := range ValidBuildTypes {
		if string(bt) == s {
			return bt, nil
		}
	}
	names := make([]string, len(ValidBuildTypes))
	for i, bt := range ValidBuildTypes {
		names[i] = string(bt)
	}
	return "", fmt.Errorf("%w %q (valid: %s)", ErrInvalidBuildType, s, strings.Join(names, ", "))
}

// =============================================================================
// Post-Build Action
// =============================================================================

// PostBuildAction is what happens after a successful compile.
type PostBuildAction int

const (
	ActionNone PostBuildAction = iota
	ActionPackage
	ActionRun
)

// String returns "none", "package" or "run".
func (a PostBuildAction) String() string {
	switch a {
	case ActionPackage:
		return "package"
	case ActionRun:
		return "run"
	default:
		return "none"
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Options is the raw command-line input for a build.
type Options struct {
	// BuildType is the explicit --build-type value, "" when absent.
	BuildType string

	// Debug forces the Debug build type and attaches the debugger.
	Debug bool

	// WithDebugger attaches the debugger without changing the build type.
	WithDebugger bool

	ClearBuild  bool
	Reconfigure bool
	Package     bool

	// NoRun suppresses running the binary after the build.
	NoRun bool

	// DefaultType applies when neither BuildType nor Debug is set.
	// Empty means Release.
	DefaultType BuildType
}

// Configuration is the resolved, immutable build request.
type Configuration struct {
	buildType      BuildType
	clearBuild     bool
	reconfigure    bool
	packageMode    bool
	runAfterBuild  bool
	attachDebugger bool
}

// NewConfiguration resolves opts.
//
// # Description
//
// The build type is the explicit value when given, else Debug when
// opts.Debug is set, else opts.DefaultType. An invalid explicit or default
// type fails here, before anything touches the filesystem or spawns a
// process.
//
// # Outputs
//
//   - Configuration: The resolved configuration
//   - error: Wraps ErrInvalidBuildType
func NewConfiguration(opts Options) (Configuration, error) {
	var bt BuildType
	switch {
	case opts.BuildType != "":
		parsed, err := ParseBuildType(opts.BuildType)
		if err != nil {
			return Configuration{}, err
		}
		bt = parsed
	case opts.Debug:
		bt = Debug
	case opts.DefaultType != "":
		parsed, err := ParseBuildType(string(opts.DefaultType))
		if err != nil {
			return Configuration{}, err
		}
		bt = parsed
	default:
		bt = Release
	}

	return Configuration{
		buildType:      bt,
		clearBuild:     opts.ClearBuild,
		reconfigure:    opts.Reconfigure,
		packageMode:    opts.Package,
		runAfterBuild:  !opts.NoRun,
		attachDebugger: opts.Debug || opts.WithDebugger,
	}, nil
}

// BuildType returns the resolved build type.
func (c Configuration) BuildType() BuildType { return c.buildType }

// ClearBuild reports whether the build directory is recreated empty.
func (c Configuration) ClearBuild() bool { return c.clearBuild }

// Reconfigure reports whether the configure step was requested.
func (c Configuration) Reconfigure() bool { return c.reconfigure }

// PackageMode reports whether packaging was requested.
func (c Configuration) PackageMode() bool { return c.packageMode }

// RunAfterBuild reports whether running the binary was requested.
func (c Configuration) RunAfterBuild() bool { return c.runAfterBuild }

// AttachDebugger reports whether a run happens under the debugger.
func (c Configuration) AttachDebugger() bool { return c.attachDebugger }

// PostBuildAction returns exactly one action. Package wins over run.
func (c Configuration) PostBuildAction() PostBuildAction {
	switch {
	case c.packageMode:
		return ActionPackage
	case c.runAfterBuild:
		return ActionRun
	default:
		return ActionNone
	}
}

// CompileOnly returns a copy with no post-build action. Used by watch mode.
func (c Configuration) CompileOnly() Configuration {
	c.packageMode = false
	c.runAfterBuild = false
	c.clearBuild = false
	return c
}
