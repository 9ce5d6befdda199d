// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the relforge pipeline configuration.
//
// Configuration lives in relforge.yaml at the project root. Every field has a
// default from DefaultConfig, so an empty or missing file yields a usable
// configuration for a CMake project laid out as <root>/CMakeLists.txt.
package config

import "time"

// Config is the root of relforge.yaml.
type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Build     BuildConfig     `yaml:"build"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Version   VersionConfig   `yaml:"version"`
	Release   ReleaseConfig   `yaml:"release"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Watch     WatchConfig     `yaml:"watch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ProjectConfig identifies the project and its outputs.
type ProjectConfig struct {
	// Root is the source tree containing CMakeLists.txt. Relative paths in
	// the rest of the config resolve against it.
	Root string `yaml:"root" validate:"required"`

	// Product is the artifact and release name prefix.
	Product string `yaml:"product" validate:"required,excludesall=/\\"`

	// Platform is the platform suffix in artifact names, e.g. "win64".
	Platform string `yaml:"platform" validate:"required,excludesall=/\\"`

	// Executable is the binary name produced by the build, without ".exe".
	Executable string `yaml:"executable" validate:"required"`
}

// BuildConfig controls the external toolchain.
type BuildConfig struct {
	DefaultType string `yaml:"default_type" validate:"oneof=Release Debug RelWithDebInfo MinSizeRel"`
	Jobs        int    `yaml:"jobs" validate:"min=1,max=512"`

	// Generator overrides the CMake generator. Empty selects the platform
	// default ("Unix Makefiles" on Windows, the CMake default elsewhere).
	Generator string `yaml:"generator"`

	// PackageDefines are passed as -D<define> at configure time in package mode.
	PackageDefines []string `yaml:"package_defines"`

	// Debugger is the argv prefix used to run the built binary under a debugger.
	Debugger []string `yaml:"debugger" validate:"min=1"`

	CMake string `yaml:"cmake" validate:"required"`
	CPack string `yaml:"cpack" validate:"required"`
}

// ArtifactsConfig describes the release assets.
type ArtifactsConfig struct {
	// SourceStem is the fixed build-tool output name without extension.
	// Empty means "<product>-<platform>".
	SourceStem string `yaml:"source_stem"`

	// Extensions lists the expected asset kinds.
	Extensions []string `yaml:"extensions" validate:"min=1,dive,required,excludesall=/\\."`
}

// Commit policies for the version counter.
const (
	CommitEager    = "eager"
	CommitDeferred = "deferred"
)

// VersionConfig locates the version counter.
type VersionConfig struct {
	File   string `yaml:"file" validate:"required"`
	Major  int    `yaml:"major" validate:"min=0"`
	Minor  int    `yaml:"minor" validate:"min=0"`
	Commit string `yaml:"commit" validate:"oneof=eager deferred"`
}

// ReleaseConfig targets the hosting service.
type ReleaseConfig struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch" validate:"required"`

	// TokenEnv names the environment variable holding the bearer token.
	// The token itself is never read from this file.
	TokenEnv string `yaml:"token_env" validate:"required"`

	APIURL    string `yaml:"api_url" validate:"omitempty,url"`
	UploadURL string `yaml:"upload_url" validate:"omitempty,url"`

	// Title, Body and TagMessage are text/template strings over
	// {{.Product}}, {{.Version}} and {{.Tag}}.
	Title      string `yaml:"title" validate:"required"`
	Body       string `yaml:"body"`
	TagMessage string `yaml:"tag_message" validate:"required"`

	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
}

// MirrorConfig configures the optional GCS copy of uploaded assets.
type MirrorConfig struct {
	Project         string `yaml:"project"`
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
	Prefix          string `yaml:"prefix"`
}

// Enabled reports whether a bucket is configured.
func (m MirrorConfig) Enabled() bool {
	return m.Bucket != ""
}

// LedgerConfig configures the local release history.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`

	// MetricsFile receives Prometheus text exposition on shutdown when the
	// prometheus exporter is selected.
	MetricsFile string `yaml:"metrics_file"`
}

// WatchConfig configures the rebuild-on-change loop.
type WatchConfig struct {
	Paths    []string      `yaml:"paths" validate:"min=1"`
	Debounce time.Duration `yaml:"debounce" validate:"min=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns the configuration used when relforge.yaml is absent.
func DefaultConfig() Config {
	return Config{
		Project: ProjectConfig{
			Root:       ".",
			Product:    "Product",
			Platform:   "win64",
			Executable: "main",
		},
		Build: BuildConfig{
			DefaultType:    "Release",
			Jobs:           8,
			PackageDefines: []string{"PACKAGE_MODE=ON"},
			Debugger:       []string{"gdb", "-ex", "run", "--args"},
			CMake:          "cmake",
			CPack:          "cpack",
		},
		Artifacts: ArtifactsConfig{
			Extensions: []string{"exe", "zip"},
		},
		Version: VersionConfig{
			File:   "version.txt",
			Commit: CommitEager,
		},
		Release: ReleaseConfig{
			Branch:            "main",
			TokenEnv:          "GITHUB_TOKEN",
			Title:             "{{.Product}} {{.Version}}",
			Body:              "Automated release for version {{.Version}}",
			TagMessage:        "Tag for version {{.Version}}",
			RequestsPerSecond: 5,
		},
		Ledger: LedgerConfig{
			Enabled: true,
			Path:    ".relforge/ledger",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
			MetricsFile:    ".relforge/metrics.prom",
		},
		Watch: WatchConfig{
			Paths:    []string{"src", "include", "CMakeLists.txt"},
			Debounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   ".relforge/logs",
		},
	}
}

// SourceStem returns the artifact source stem, defaulting to
// "<product>-<platform>".
func (c *Config) SourceStem() string {
	if c.Artifacts.SourceStem != "" {
		return c.Artifacts.SourceStem
	}
	return c.Project.Product + "-" + c.Project.Platform
}
