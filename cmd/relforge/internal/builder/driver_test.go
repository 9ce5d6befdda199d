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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AleutianAI/relforge/cmd/relforge/internal/process"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/telemetry"
	"github.com/AleutianAI/relforge/pkg/logging"
)

func newTestDriver(t *testing.T, pm process.ProcessManager, goos string) (*Driver, string) {
	t.Helper()
	root := t.TempDir()
	d := NewDriver(DriverConfig{
		Root:           root,
		Executable:     "main",
		PackageDefines: []string{"PACKAGE_MODE=ON"},
		GOOS:           goos,
	}, pm, logging.Nop(), nil)
	return d, root
}

func mustConfig(t *testing.T, opts Options) Configuration {
	t.Helper()
	c, err := NewConfiguration(opts)
	require.NoError(t, err)
	return c
}

// markConfigured makes the directory look like cmake already ran.
func markConfigured(t *testing.T, d *Driver, bt BuildType) string {
	t.Helper()
	dir := d.Directory(bt).Path()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CMakeCache.txt"), nil, 0644))
	return dir
}

func TestDriver_CreatesOnlyItsBuildDirectory(t *testing.T) {
	mock := &process.MockProcessManager{}
	d, root := newTestDriver(t, mock, "linux")

	debugDir := filepath.Join(root, "build", "Debug")
	require.NoError(t, os.MkdirAll(debugDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(debugDir, "keep.o"), []byte("x"), 0644))

	res, err := d.Run(context.Background(), mustConfig(t, Options{NoRun: true, ClearBuild: true}))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "build", "Release"), res.Directory)
	entries, err := os.ReadDir(filepath.Join(root, "build"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"Debug", "Release"}, names)
	assert.FileExists(t, filepath.Join(debugDir, "keep.o"))
}

func TestDriver_ClearBuildEmptiesDirectoryBeforeConfigure(t *testing.T) {
	var entriesAtConfigure []os.DirEntry
	mock := &process.MockProcessManager{}
	d, _ := newTestDriver(t, mock, "linux")
	dir := markConfigured(t, d, Release)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.o"), []byte("old"), 0644))

	mock.StreamFunc = func(ctx context.Context, wd, name string, args ...string) error {
		if args[0] == "-S" {
			var err error
			entriesAtConfigure, err = os.ReadDir(dir)
			return err
		}
		return nil
	}

	res, err := d.Run(context.Background(), mustConfig(t, Options{ClearBuild: true, Reconfigure: true, NoRun: true}))
	require.NoError(t, err)

	assert.True(t, res.Configured)
	assert.Empty(t, entriesAtConfigure)
	assert.NoFileExists(t, filepath.Join(dir, "stale.o"))
}

func TestDriver_ConfigureAndBuildArgs(t *testing.T) {
	mock := &process.MockProcessManager{}
	d, root := newTestDriver(t, mock, "linux")

	_, err := d.Run(context.Background(), mustConfig(t, Options{Reconfigure: true, NoRun: true, BuildType: "RelWithDebInfo"}))
	require.NoError(t, err)

	dir := filepath.Join(root, "build", "RelWithDebInfo")
	require.Len(t, mock.Calls, 2)
	assert.Equal(t, process.Call{
		Method: "Stream",
		Dir:    root,
		Name:   "cmake",
		Args:   []string{"-S", root, "-B", dir, "-DCMAKE_BUILD_TYPE=RelWithDebInfo"},
	}, mock.Calls[0])
	assert.Equal(t, []string{"--build", dir, "-j", "8"}, mock.Calls[1].Args)
}

func TestDriver_WindowsGeneratorAndPackageDefines(t *testing.T) {
	d, root := newTestDriver(t, &process.MockProcessManager{}, "windows")
	c := mustConfig(t, Options{Package: true})

	args := d.ConfigureArgs(c)

	assert.Equal(t, []string{
		"-S", root, "-B", filepath.Join(root, "build", "Release"),
		"-G", "Unix Makefiles", "-DCMAKE_COLOR_MAKEFILE=ON",
		"-DCMAKE_BUILD_TYPE=Release", "-DPACKAGE_MODE=ON",
	}, args)
}

func TestDriver_SkipsConfigureWhenAlreadyConfigured(t *testing.T) {
	mock := &process.MockProcessManager{}
	d, _ := newTestDriver(t, mock, "linux")
	markConfigured(t, d, Release)

	res, err := d.Run(context.Background(), mustConfig(t, Options{NoRun: true}))
	require.NoError(t, err)

	assert.False(t, res.Configured)
	require.Len(t, mock.Calls, 1)
	assert.Equal(t, "--build", mock.Calls[0].Args[0])
}

func TestDriver_BuildFailureAborts(t *testing.T) {
	mock := &process.MockProcessManager{
		StreamFunc: func(ctx context.Context, dir, name string, args ...string) error {
			if args[0] == "--build" {
				return process.NewCommandError("cmake --build", 2, "error: boom", nil)
			}
			return nil
		},
	}
	d, _ := newTestDriver(t, mock, "linux")
	markConfigured(t, d, Release)

	_, err := d.Run(context.Background(), mustConfig(t, Options{}))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageBuild, stageErr.Stage)
	assert.Equal(t, 2, process.ExitCodeOf(err))
	assert.Empty(t, mock.CallsTo(filepath.Join(d.Directory(Release).Path(), "main")))
	for _, c := range mock.Calls {
		assert.NotEqual(t, "Attach", c.Method)
	}
}

func TestDriver_ConfigureFailureAborts(t *testing.T) {
	mock := &process.MockProcessManager{
		StreamFunc: func(ctx context.Context, dir, name string, args ...string) error {
			return process.NewCommandError("cmake", 1, "CMake Error", nil)
		},
	}
	d, _ := newTestDriver(t, mock, "linux")

	_, err := d.Run(context.Background(), mustConfig(t, Options{Reconfigure: true}))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageConfigure, stageErr.Stage)
	assert.Len(t, mock.Calls, 1)
}

func TestDriver_RunsBinary(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		goos     string
		wantName func(dir string) string
		wantArgs func(dir string) []string
	}{
		{
			name:     "plain run",
			opts:     Options{},
			goos:     "linux",
			wantName: func(dir string) string { return filepath.Join(dir, "main") },
			wantArgs: func(string) []string { return nil },
		},
		{
			name:     "windows exe",
			opts:     Options{},
			goos:     "windows",
			wantName: func(dir string) string { return filepath.Join(dir, "main") + ".exe" },
			wantArgs: func(string) []string { return nil },
		},
		{
			name:     "under debugger",
			opts:     Options{WithDebugger: true},
			goos:     "linux",
			wantName: func(string) string { return "gdb" },
			wantArgs: func(dir string) []string { return []string{"-ex", "run", "--args", filepath.Join(dir, "main")} },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &process.MockProcessManager{}
			d, root := newTestDriver(t, mock, tt.goos)
			dir := markConfigured(t, d, Release)

			res, err := d.Run(context.Background(), mustConfig(t, tt.opts))
			require.NoError(t, err)
			assert.Equal(t, ActionRun, res.Action)

			last := mock.Calls[len(mock.Calls)-1]
			assert.Equal(t, "Attach", last.Method)
			assert.Equal(t, root, last.Dir)
			assert.Equal(t, tt.wantName(dir), last.Name)
			if want := tt.wantArgs(dir); want == nil {
				assert.Empty(t, last.Args)
			} else {
				assert.Equal(t, want, last.Args)
			}
		})
	}
}

func TestDriver_RunFailureIsStageError(t *testing.T) {
	mock := &process.MockProcessManager{
		AttachFunc: func(ctx context.Context, dir, name string, args ...string) error {
			return process.NewCommandError(name, 139, "", nil)
		},
	}
	d, _ := newTestDriver(t, mock, "linux")
	markConfigured(t, d, Debug)

	_, err := d.Run(context.Background(), mustConfig(t, Options{Debug: true}))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageRun, stageErr.Stage)
	assert.Equal(t, Debug, stageErr.BuildType)
}

func TestDriver_PackageRewritesComponentsThenRunsCPack(t *testing.T) {
	var configAtCPack string
	mock := &process.MockProcessManager{}
	d, _ := newTestDriver(t, mock, "linux")
	dir := markConfigured(t, d, Release)
	cpackPath := filepath.Join(dir, "CPackConfig.cmake")
	require.NoError(t, os.WriteFile(cpackPath,
		[]byte("set(CPACK_PACKAGE_NAME \"my-game\")\nset(CPACK_COMPONENTS_ALL \"game-core;game-data\")\n"), 0644))

	mock.StreamFunc = func(ctx context.Context, wd, name string, args ...string) error {
		if name == "cpack" {
			data, err := os.ReadFile(cpackPath)
			configAtCPack = string(data)
			return err
		}
		return nil
	}

	res, err := d.Run(context.Background(), mustConfig(t, Options{Package: true}))
	require.NoError(t, err)

	assert.Equal(t, []string{"game_core", "game_data"}, res.Components)
	assert.Contains(t, configAtCPack, "\"game_core;game_data\"")
	assert.Contains(t, configAtCPack, "\"my-game\"")

	calls := mock.CallsTo("cpack")
	require.Len(t, calls, 1)
	assert.Equal(t, dir, calls[0].Dir)
	assert.Equal(t, []string{"--config", "CPackConfig.cmake", "-C", "Release"}, calls[0].Args)
	for _, c := range mock.Calls {
		assert.NotEqual(t, "Attach", c.Method, "package mode must not run the binary")
	}
}

func TestDriver_PackageWithoutCPackConfig(t *testing.T) {
	mock := &process.MockProcessManager{}
	d, _ := newTestDriver(t, mock, "linux")
	markConfigured(t, d, Release)

	_, err := d.Run(context.Background(), mustConfig(t, Options{Package: true}))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePackage, stageErr.Stage)
	assert.Empty(t, mock.CallsTo("cpack"))
}

func TestDriver_CompileOnly(t *testing.T) {
	mock := &process.MockProcessManager{}
	d, _ := newTestDriver(t, mock, "linux")
	markConfigured(t, d, Release)

	res, err := d.Compile(context.Background(), mustConfig(t, Options{Package: true}))
	require.NoError(t, err)

	assert.Equal(t, ActionNone, res.Action)
	require.Len(t, mock.Calls, 1)
}

func TestDriver_RecordsBuildDuration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, err := telemetry.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	mock := &process.MockProcessManager{}
	root := t.TempDir()
	d := NewDriver(DriverConfig{Root: root, Executable: "main"}, mock, nil, &telemetry.Provider{Metrics: metrics})
	markConfigured(t, d, Release)

	_, err = d.Run(context.Background(), mustConfig(t, Options{NoRun: true}))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if h, ok := m.Data.(metricdata.Histogram[float64]); ok && m.Name == "relforge.build.duration" {
				for _, dp := range h.DataPoints {
					count += dp.Count
				}
			}
		}
	}
	assert.Equal(t, uint64(1), count)
}

func TestStageError_Message(t *testing.T) {
	err := &StageError{Stage: StagePackage, BuildType: Release, Err: process.NewCommandError("cpack", 1, "", nil)}
	assert.Equal(t, "package failed (Release): cpack (exit 1)", err.Error())
}
