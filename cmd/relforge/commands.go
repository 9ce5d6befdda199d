// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
	"github.com/AleutianAI/relforge/cmd/relforge/gcs"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/process"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/publish"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/publish/github"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/release"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/secrets"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/telemetry"
	"github.com/AleutianAI/relforge/pkg/logging"
	"github.com/AleutianAI/relforge/pkg/ux"
)

// skipConfig marks commands that run without loading relforge.yaml.
const skipConfig = "relforge/skip-config"

// deps are the process-level collaborators, replaced in tests.
type deps struct {
	processManager func() process.ProcessManager
	lookupEnv      func(string) (string, bool)

	// logWriter receives console logs. Nil means stderr.
	logWriter io.Writer

	newRemote func(cfg *config.Config, cred *secrets.Credential, logger *logging.Logger, tel *telemetry.Provider) (publish.Remote, error)
	newMirror func(ctx context.Context, cfg *config.Config, logger *logging.Logger) (release.Mirror, io.Closer, error)
}

func defaultDeps() deps {
	return deps{
		processManager: func() process.ProcessManager { return process.NewDefaultProcessManager() },
		lookupEnv:      os.LookupEnv,
		newRemote: func(cfg *config.Config, cred *secrets.Credential, logger *logging.Logger, tel *telemetry.Provider) (publish.Remote, error) {
			return github.New(github.Config{
				Owner:             cfg.Release.Owner,
				Repo:              cfg.Release.Repo,
				APIURL:            cfg.Release.APIURL,
				UploadURL:         cfg.Release.UploadURL,
				RequestsPerSecond: cfg.Release.RequestsPerSecond,
			}, cred, logger, tel)
		},
		newMirror: func(ctx context.Context, cfg *config.Config, logger *logging.Logger) (release.Mirror, io.Closer, error) {
			client, err := gcs.NewClient(ctx, gcs.Config{
				ProjectID:       cfg.Mirror.Project,
				Bucket:          cfg.Mirror.Bucket,
				CredentialsFile: cfg.Path(cfg.Mirror.CredentialsFile),
				Prefix:          cfg.Mirror.Prefix,
			}, logger)
			if err != nil {
				return nil, nil, err
			}
			return client, client, nil
		},
	}
}

// cli holds flag values and the per-invocation state built in PersistentPreRunE.
type cli struct {
	deps deps

	configPath  string
	logLevel    string
	logJSON     bool
	personality string

	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Provider
}

func newCLI(d deps) *cli {
	return &cli{deps: d}
}

// rootCmd assembles the command tree.
func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "relforge",
		Short: "Build a CMake project and publish versioned GitHub releases",
		Long: `relforge drives CMake and CPack to build a project, stamps the
artifacts with a version from the version file, and publishes them as a
GitHub release with a matching tag.`,
		Version:           buildVersion,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", config.DefaultFileName, "path to relforge.yaml")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides logging.level)")
	pf.BoolVar(&c.logJSON, "log-json", false, "write console logs as JSON")
	pf.StringVar(&c.personality, "personality", "", "output style: full, standard, minimal, machine")

	root.AddCommand(
		c.buildCmd(),
		c.releaseCmd(),
		c.versionCmd(),
		c.historyCmd(),
		c.watchCmd(),
		c.initCmd(),
	)
	return root
}

// setup loads configuration and builds the logger and telemetry provider.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	ux.InitPersonality(c.personality)
	if cmd.Annotations[skipConfig] == "true" {
		c.logger = logging.New(logging.Config{Writer: c.deps.logWriter})
		return nil
	}

	required := cmd.Flags().Changed("config")
	cfg, err := config.LoadWith(c.configPath, required, c.deps.lookupEnv)
	if err != nil {
		return err
	}
	c.cfg = cfg

	levelText := cfg.Logging.Level
	if c.logLevel != "" {
		levelText = c.logLevel
	}
	level, err := logging.ParseLevel(levelText)
	if err != nil {
		return &config.Error{Field: "logging.level", Err: err}
	}
	c.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Path(cfg.Logging.Dir),
		Service: cmd.Name(),
		JSON:    c.logJSON || cfg.Logging.JSON,
		Writer:  c.deps.logWriter,
	})

	tel, err := telemetry.Init(cmd.Context(), telemetry.Config{
		ServiceName:    "relforge",
		ServiceVersion: buildVersion,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   true,
		MetricsFile:    cfg.Path(cfg.Telemetry.MetricsFile),
	})
	if err != nil {
		return &config.Error{Field: "telemetry", Err: err}
	}
	c.tel = tel
	return nil
}

// close flushes telemetry and closes the log file.
func (c *cli) close() {
	if c.tel != nil {
		if err := c.tel.Shutdown(context.Background()); err != nil && c.logger != nil {
			c.logger.Warn("telemetry shutdown", "error", err)
		}
	}
	if c.logger != nil {
		_ = c.logger.Close()
	}
}

// errNoArgs is returned when a command that takes no arguments gets some.
var errNoArgs = errors.New("unexpected arguments")

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &usageError{err: errNoArgs}
	}
	return nil
}
