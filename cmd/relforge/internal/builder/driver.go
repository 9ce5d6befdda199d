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
	"context"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/relforge/cmd/relforge/internal/cpack"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/process"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/telemetry"
	"github.com/AleutianAI/relforge/pkg/logging"
)

// DriverConfig describes the project and toolchain.
type DriverConfig struct {
	// Root is the source tree containing CMakeLists.txt.
	Root string

	// Executable is the built binary name without platform suffix.
	Executable string

	// Jobs is the parallelism hint for the compile step. Default: 8.
	Jobs int

	// Generator overrides the CMake generator. Empty selects the platform
	// default.
	Generator string

	// PackageDefines are added as -D<define> when configuring in package mode.
	PackageDefines []string

	// Debugger is the argv prefix for debugger runs. Default: gdb -ex run --args.
	Debugger []string

	// CMake and CPack are the tool executables. Default: "cmake", "cpack".
	CMake string
	CPack string

	// GOOS selects platform behavior. Default: runtime.GOOS.
	GOOS string
}

// Result describes a successful build.
type Result struct {
	BuildType  BuildType
	Directory  string
	Configured bool
	Elapsed    time.Duration
	Action     PostBuildAction

	// Components is the normalized CPack component list in package mode.
	Components []string
}

// Driver runs builds.
//
// # Thread Safety
//
// A Driver holds no per-build state, but two concurrent builds of the same
// type share a directory and will corrupt each other.
type Driver struct {
	cfg    DriverConfig
	pm     process.ProcessManager
	logger *logging.Logger
	tel    *telemetry.Provider
}

// NewDriver creates a Driver. A nil logger or telemetry provider disables
// that output.
func NewDriver(cfg DriverConfig, pm process.ProcessManager, logger *logging.Logger, tel *telemetry.Provider) *Driver {
	if cfg.Jobs <= 0 {
		cfg.Jobs = 8
	}
	if len(cfg.Debugger) == 0 {
		cfg.Debugger = []string{"gdb", "-ex", "run", "--args"}
	}
	if cfg.CMake == "" {
		cfg.CMake = "cmake"
	}
	if cfg.CPack == "" {
		cfg.CPack = "cpack"
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Driver{cfg: cfg, pm: pm, logger: logger, tel: tel}
}

// Directory returns the build directory for bt.
func (d *Driver) Directory(bt BuildType) Directory {
	return NewDirectory(d.cfg.Root, bt)
}

// Run executes the full build described by c.
//
// # Outputs
//
//   - Result: Directory, timing and the action taken
//   - error: *StageError; tool failures wrap *process.CommandError
func (d *Driver) Run(ctx context.Context, c Configuration) (Result, error) {
	ctx, span := d.tel.StartSpan(ctx, "relforge.build",
		attribute.String("build_type", string(c.BuildType())),
		attribute.String("action", c.PostBuildAction().String()),
	)
	res, err := d.run(ctx, c)
	telemetry.EndSpan(span, err)
	return res, err
}

func (d *Driver) run(ctx context.Context, c Configuration) (Result, error) {
	dir := d.Directory(c.BuildType())
	res := Result{BuildType: c.BuildType(), Directory: dir.Path(), Action: c.PostBuildAction()}
	log := d.logger.With("build_type", string(c.BuildType()))

	if err := dir.Prepare(c.ClearBuild()); err != nil {
		return res, d.fail(ctx, StagePrepare, c, err)
	}
	if c.ClearBuild() {
		log.Info("cleared build directory", "dir", dir.Path())
	}

	if c.Reconfigure() || !dir.Configured() {
		if err := d.configure(ctx, c, dir); err != nil {
			return res, err
		}
		res.Configured = true
	}

	elapsed, err := d.compile(ctx, c, dir)
	if err != nil {
		return res, err
	}
	res.Elapsed = elapsed

	switch c.PostBuildAction() {
	case ActionPackage:
		components, err := d.pack(ctx, c, dir)
		if err != nil {
			return res, err
		}
		res.Components = components
	case ActionRun:
		if err := d.runBinary(ctx, c, dir); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Compile prepares, configures if needed and compiles, with no post-build
// action. Used by watch mode.
func (d *Driver) Compile(ctx context.Context, c Configuration) (Result, error) {
	return d.Run(ctx, c.CompileOnly())
}

// ConfigureArgs returns the cmake configure argv (without the executable).
func (d *Driver) ConfigureArgs(c Configuration) []string {
	dir := d.Directory(c.BuildType())
	args := []string{"-S", d.cfg.Root, "-B", dir.Path()}

	generator := d.cfg.Generator
	if generator == "" && d.cfg.GOOS == "windows" {
		generator = "Unix Makefiles"
	}
	if generator != "" {
		args = append(args, "-G", generator)
	}
	if d.cfg.GOOS == "windows" {
		args = append(args, "-DCMAKE_COLOR_MAKEFILE=ON")
	}
	args = append(args, "-DCMAKE_BUILD_TYPE="+string(c.BuildType()))
	if c.PackageMode() {
		for _, def := range d.cfg.PackageDefines {
			args = append(args, "-D"+def)
		}
	}
	return args
}

// BuildArgs returns the cmake compile argv (without the executable).
func (d *Driver) BuildArgs(c Configuration) []string {
	return []string{"--build", d.Directory(c.BuildType()).Path(), "-j", strconv.Itoa(d.cfg.Jobs)}
}

// RunCommand returns the executable and argv used to run the built binary.
func (d *Driver) RunCommand(c Configuration) (string, []string) {
	exe := filepath.Join(d.Directory(c.BuildType()).Path(), d.cfg.Executable)
	if d.cfg.GOOS == "windows" {
		exe += ".exe"
	}
	if !c.AttachDebugger() {
		return exe, nil
	}
	args := append([]string(nil), d.cfg.Debugger[1:]...)
	return d.cfg.Debugger[0], append(args, exe)
}

func (d *Driver) configure(ctx context.Context, c Configuration, dir Directory) error {
	args := d.ConfigureArgs(c)
	d.logger.Info("configuring", "build_type", string(c.BuildType()), "dir", dir.Path())
	d.logger.Debug("exec", "cmd", process.FormatCommand(d.cfg.CMake, args))

	ctx, span := d.tel.StartSpan(ctx, "relforge.configure")
	err := d.pm.Stream(ctx, d.cfg.Root, d.cfg.CMake, args...)
	telemetry.EndSpan(span, err)
	if err != nil {
		return d.fail(ctx, StageConfigure, c, err)
	}
	return nil
}

func (d *Driver) compile(ctx context.Context, c Configuration, dir Directory) (time.Duration, error) {
	args := d.BuildArgs(c)
	d.logger.Info("building", "build_type", string(c.BuildType()), "jobs", d.cfg.Jobs)
	d.logger.Debug("exec", "cmd", process.FormatCommand(d.cfg.CMake, args))

	ctx, span := d.tel.StartSpan(ctx, "relforge.compile")
	start := time.Now()
	err := d.pm.Stream(ctx, d.cfg.Root, d.cfg.CMake, args...)
	elapsed := time.Since(start)
	telemetry.EndSpan(span, err)
	if err != nil {
		return elapsed, d.fail(ctx, StageBuild, c, err)
	}

	d.tel.Metrics.RecordBuild(ctx, string(c.BuildType()), elapsed)
	d.logger.Info("build finished", "build_type", string(c.BuildType()), "elapsed", elapsed.Round(time.Millisecond).String())
	return elapsed, nil
}

func (d *Driver) pack(ctx context.Context, c Configuration, dir Directory) ([]string, error) {
	ctx, span := d.tel.StartSpan(ctx, "relforge.package")
	components, err := d.packInner(ctx, c, dir)
	telemetry.EndSpan(span, err)
	return components, err
}

func (d *Driver) packInner(ctx context.Context, c Configuration, dir Directory) ([]string, error) {
	res, err := cpack.Rewrite(filepath.Join(dir.Path(), cpack.ConfigFileName))
	if err != nil {
		return nil, d.fail(ctx, StagePackage, c, err)
	}
	if res.Changed {
		d.logger.Info("normalized cpack components", "components", res.Components)
	}

	args := []string{"--config", cpack.ConfigFileName, "-C", string(c.BuildType())}
	d.logger.Info("packaging", "build_type", string(c.BuildType()))
	d.logger.Debug("exec", "cmd", process.FormatCommand(d.cfg.CPack, args), "dir", dir.Path())
	if err := d.pm.Stream(ctx, dir.Path(), d.cfg.CPack, args...); err != nil {
		return nil, d.fail(ctx, StagePackage, c, err)
	}
	return res.Components, nil
}

func (d *Driver) runBinary(ctx context.Context, c Configuration, dir Directory) error {
	name, args := d.RunCommand(c)
	d.logger.Info("running", "cmd", process.FormatCommand(name, args), "debugger", c.AttachDebugger())

	if err := d.pm.Attach(ctx, d.cfg.Root, name, args...); err != nil {
		return d.fail(ctx, StageRun, c, err)
	}
	return nil
}

func (d *Driver) fail(ctx context.Context, stage Stage, c Configuration, err error) error {
	d.tel.Metrics.RecordStageFailure(ctx, string(stage))
	d.logger.Error("stage failed",
		"stage", string(stage),
		"build_type", string(c.BuildType()),
		"exit_code", process.ExitCodeOf(err),
		"error", err,
	)
	return &StageError{Stage: stage, BuildType: c.BuildType(), Err: err}
}
