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
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/relforge/cmd/relforge/internal/artifact"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/builder"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/ledger"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/process"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/publish"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/release"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/secrets"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/version"
	"github.com/AleutianAI/relforge/pkg/ux"
)

type releaseFlags struct {
	yes       bool
	dryRun    bool
	buildType string
}

func (c *cli) releaseCmd() *cobra.Command {
	var f releaseFlags
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Version, tag and publish the artifacts of the last build",
		Long: `Claims the next version from the version file, copies the build outputs
to versioned names, creates the tag and GitHub release, and uploads the
assets. The build itself is not run; use "relforge build --package" first.

The token is read from the environment variable named by release.token_env
(GITHUB_TOKEN by default).`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRelease(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.BoolVarP(&f.yes, "yes", "y", false, "publish without asking for confirmation")
	fl.BoolVar(&f.dryRun, "dry-run", false, "show what would be published without changing anything")
	fl.StringVarP(&f.buildType, "build-type", "b", "", "build directory to release from (default build.default_type)")
	return cmd
}

func (c *cli) runRelease(cmd *cobra.Command, f releaseFlags) error {
	ctx := cmd.Context()
	cfg := c.cfg

	// Everything that can fail as configuration fails before any side effect.
	if err := cfg.ValidateRelease(); err != nil {
		return err
	}
	btText := f.buildType
	if btText == "" {
		btText = cfg.Build.DefaultType
	}
	bt, err := builder.ParseBuildType(btText)
	if err != nil {
		return err
	}
	texts, err := release.ParseTexts(cfg.Release.Title, cfg.Release.Body, cfg.Release.TagMessage)
	if err != nil {
		return err
	}
	cred, err := secrets.FromEnv(cfg.Release.TokenEnv, c.deps.lookupEnv)
	if err != nil {
		return err
	}
	defer cred.Destroy()

	remote, err := c.deps.newRemote(cfg, cred, c.logger, c.tel)
	if err != nil {
		return err
	}

	store := version.NewStore(cfg.Path(cfg.Version.File), cfg.Version.Major, cfg.Version.Minor)
	buildDir := builder.NewDirectory(cfg.Project.Root, bt).Path()
	namer := artifact.NewNamer(artifact.Config{
		Product:    cfg.Project.Product,
		Platform:   cfg.Project.Platform,
		SourceStem: cfg.SourceStem(),
		Extensions: cfg.Artifacts.Extensions,
	}, c.logger)

	if !f.dryRun && !f.yes {
		if err := c.confirmRelease(store, namer, buildDir); err != nil {
			return err
		}
	}

	deps := release.Deps{
		Lock:      process.NewProcessLock(filepath.Join(cfg.StateDir(), "release.lock")),
		Store:     store,
		Namer:     namer,
		Publisher: publish.NewPublisher(remote, c.logger, c.tel),
		Logger:    c.logger,
		Telemetry: c.tel,
	}
	if !f.dryRun {
		if l := c.openLedger(); l != nil {
			defer l.Close()
			deps.Ledger = l
		}
		if m, closer := c.openMirror(cmd); m != nil {
			defer closer.Close()
			deps.Mirror = m
		}
	}

	runner, err := release.NewRunner(release.Options{
		Product:  cfg.Project.Product,
		BuildDir: buildDir,
		Branch:   cfg.Release.Branch,
		Commit:   cfg.Version.Commit,
		Texts:    texts,
		DryRun:   f.dryRun,
	}, deps)
	if err != nil {
		return err
	}

	target := cfg.Release.Owner + "/" + cfg.Release.Repo
	message := "publishing to " + target
	if f.dryRun {
		message = "checking " + target
	}
	var out release.Outcome
	err = ux.WithSpinner(message, func() error {
		var runErr error
		out, runErr = runner.Run(ctx)
		return runErr
	})
	if f.dryRun {
		if err == nil {
			printPlan(out)
		}
		return err
	}
	printOutcome(out)
	return err
}

func (c *cli) confirmRelease(store *version.Store, namer *artifact.Namer, buildDir string) error {
	v, err := store.Peek()
	if err != nil {
		return err
	}
	artifacts, err := namer.Plan(buildDir, v)
	if err != nil {
		return err
	}
	present := 0
	for _, a := range artifacts {
		if a.Present {
			present++
		}
	}
	return ux.Confirm(
		fmt.Sprintf("Publish %s to %s/%s?", v.Tag(), c.cfg.Release.Owner, c.cfg.Release.Repo),
		fmt.Sprintf("%d of %d assets found in %s", present, len(artifacts), buildDir),
		"Publish",
	)
}

// openLedger opens the release history. Failures are warnings.
func (c *cli) openLedger() *ledger.Ledger {
	if !c.cfg.Ledger.Enabled {
		return nil
	}
	l, err := ledger.Open(ledger.StoreConfig{
		Path:       c.cfg.Path(c.cfg.Ledger.Path),
		SyncWrites: true,
		Logger:     c.logger,
	})
	if err != nil {
		c.logger.Warn("release history unavailable", "error", err)
		return nil
	}
	return l
}

// openMirror creates the GCS mirror when configured. Failures are warnings.
func (c *cli) openMirror(cmd *cobra.Command) (release.Mirror, io.Closer) {
	if !c.cfg.Mirror.Enabled() || c.deps.newMirror == nil {
		return nil, nil
	}
	m, closer, err := c.deps.newMirror(cmd.Context(), c.cfg, c.logger)
	if err != nil {
		c.logger.Warn("mirror unavailable", "bucket", c.cfg.Mirror.Bucket, "error", err)
		return nil, nil
	}
	return m, closer
}

func printPlan(out release.Outcome) {
	ux.Title("Dry run: " + out.Version.Tag())
	state := "tag will be created"
	if out.Plan.InitialState == publish.StateTagPresent {
		state = "tag exists, creation skipped"
	}
	ux.KeyValue([][2]string{
		{"version", out.Version.String()},
		{"tag", out.Version.Tag()},
		{"remote", state},
		{"assets", strconv.Itoa(len(out.Plan.Present)) + " present, " + strconv.Itoa(len(out.Plan.Missing)) + " missing"},
	})
	for _, a := range out.Artifacts {
		if a.Present {
			ux.AssetStatus(filepath.Base(a.TargetPath), ux.IconPending, "from "+filepath.Base(a.SourcePath))
		} else {
			ux.AssetStatus(filepath.Base(a.TargetPath), ux.IconWarning, "missing "+filepath.Base(a.SourcePath))
		}
	}
}

func printOutcome(out release.Outcome) {
	res := out.Result
	for _, a := range res.Uploaded {
		ux.AssetStatus(a.Name, ux.IconSuccess, humanize.IBytes(uint64(a.Size)))
	}
	for _, m := range res.Missing {
		ux.AssetStatus(filepath.Base(m), ux.IconWarning, "missing")
	}
	for _, f := range res.Failed {
		ux.AssetStatus(filepath.Base(f.Path), ux.IconError, f.Err.Error())
	}
	if len(res.States) == 0 || res.States[len(res.States)-1] != publish.StateDone {
		return
	}
	ux.Summary(len(res.Uploaded), len(res.Missing), len(res.Failed))
	if len(res.Missing) > 0 {
		names := make([]string, len(res.Missing))
		for i, m := range res.Missing {
			names[i] = filepath.Base(m)
		}
		ux.WarningBox(fmt.Sprintf("%d asset(s) missing", len(res.Missing)),
			strings.Join(names, ", ")+"\nRun 'relforge build --package' before releasing to include them.")
	}
	ux.Box("Released "+out.Version.Tag(), res.Release.HTMLURL)
	for _, u := range out.Mirrored {
		ux.Info("mirrored " + u)
	}
}
