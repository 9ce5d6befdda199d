// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "relforge.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RELFORGE_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads the config at path over DefaultConfig, applies RELFORGE_*
// environment overrides, validates the result and resolves Project.Root to
// an absolute path.
//
// # Inputs
//
//   - path: Config file location
//   - required: When false a missing file yields the defaults
//
// # Outputs
//
//   - *Config: The validated configuration
//   - error: *Error (matches ErrConfiguration) on any failure
func Load(path string, required bool) (*Config, error) {
	return load(path, required, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup. A nil lookup reads
// the process environment.
func LoadWith(path string, required bool, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return load(path, required, lookup)
}

func load(path string, required bool, lookup LookupFunc) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &Error{Path: path, Err: fmt.Errorf("parse: %w", err)}
		}
	case errors.Is(err, os.ErrNotExist) && !required:
		path = ""
	default:
		return nil, &Error{Path: path, Err: err}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		var cfgErr *Error
		if errors.As(err, &cfgErr) {
			cfgErr.Path = path
		}
		return nil, err
	}

	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return nil, &Error{Path: path, Field: "project.root", Err: err}
	}
	cfg.Project.Root = root

	return &cfg, nil
}

// WriteDefault writes DefaultConfig to path, creating parent directories.
// An existing file is left alone and reported as an error.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return &Error{Path: path, Err: os.ErrExist}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// =============================================================================
// Environment Overrides
// =============================================================================

// envBindings maps RELFORGE_<NAME> to the field it overrides.
var envBindings = []struct {
	name  string
	field string
	set   func(c *Config, v string) error
}{
	{"PRODUCT", "project.product", func(c *Config, v string) error { c.Project.Product = v; return nil }},
	{"PLATFORM", "project.platform", func(c *Config, v string) error { c.Project.Platform = v; return nil }},
	{"ROOT", "project.root", func(c *Config, v string) error { c.Project.Root = v; return nil }},
	{"BUILD_TYPE", "build.default_type", func(c *Config, v string) error { c.Build.DefaultType = v; return nil }},
	{"JOBS", "build.jobs", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.Build.Jobs = n
		return nil
	}},
	{"VERSION_COMMIT", "version.commit", func(c *Config, v string) error { c.Version.Commit = v; return nil }},
	{"RELEASE_OWNER", "release.owner", func(c *Config, v string) error { c.Release.Owner = v; return nil }},
	{"RELEASE_REPO", "release.repo", func(c *Config, v string) error { c.Release.Repo = v; return nil }},
	{"RELEASE_BRANCH", "release.branch", func(c *Config, v string) error { c.Release.Branch = v; return nil }},
	{"API_URL", "release.api_url", func(c *Config, v string) error { c.Release.APIURL = v; return nil }},
	{"MIRROR_BUCKET", "mirror.bucket", func(c *Config, v string) error { c.Mirror.Bucket = v; return nil }},
	{"TRACE_EXPORTER", "telemetry.trace_exporter", func(c *Config, v string) error { c.Telemetry.TraceExporter = v; return nil }},
	{"METRIC_EXPORTER", "telemetry.metric_exporter", func(c *Config, v string) error { c.Telemetry.MetricExporter = v; return nil }},
	{"OTLP_ENDPOINT", "telemetry.otlp_endpoint", func(c *Config, v string) error { c.Telemetry.OTLPEndpoint = v; return nil }},
	{"LOG_LEVEL", "logging.level", func(c *Config, v string) error { c.Logging.Level = strings.ToLower(v); return nil }},
	{"WATCH_DEBOUNCE", "watch.debounce", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		c.Watch.Debounce = d
		return nil
	}},
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			return &Error{Field: b.field, Err: fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err)}
		}
	}
	return nil
}

// =============================================================================
// Validation
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints. The first violation is returned as an
// *Error naming the yaml field path.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Err: err}
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	reason := fe.Tag()
	if fe.Param() != "" {
		reason += "=" + fe.Param()
	}
	return &Error{Field: field, Err: fmt.Errorf("value %v violates %s", fe.Value(), reason)}
}

// ValidateRelease checks the fields only the release command needs.
func (c *Config) ValidateRelease() error {
	if c.Release.Owner == "" {
		return &Error{Field: "release.owner", Err: errors.New("required for release")}
	}
	if c.Release.Repo == "" {
		return &Error{Field: "release.repo", Err: errors.New("required for release")}
	}
	return nil
}

// =============================================================================
// Path Helpers
// =============================================================================

// Path resolves p against Project.Root unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Project.Root, p)
}

// StateDir is the directory for relforge's own state (<root>/.relforge).
func (c *Config) StateDir() string {
	return filepath.Join(c.Project.Root, ".relforge")
}
