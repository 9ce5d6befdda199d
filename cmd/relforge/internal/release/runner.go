// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package release runs the release stage: claim a version, name the
// artifacts, publish them, then mirror and record the attempt.
//
// The build stage is separate. A release only reads what the last build left
// in the build directory; it never invokes the toolchain.
package release

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/artifact"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/ledger"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/process"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/publish"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/telemetry"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/version"
	"github.com/AleutianAI/relforge/pkg/logging"
)

// =============================================================================
// Collaborators
// =============================================================================

// Mirror copies uploaded assets to secondary storage.
type Mirror interface {
	Mirror(ctx context.Context, tag string, assets []string) ([]string, error)
}

// Recorder persists release attempts.
type Recorder interface {
	Put(ctx context.Context, rec ledger.Record) error
}

// Options configures a Runner.
type Options struct {
	Product string

	// BuildDir holds the raw artifacts of the last build.
	BuildDir string

	Branch string

	// Commit is config.CommitEager or config.CommitDeferred.
	Commit string

	Texts *Texts

	// DryRun resolves everything and probes the remote without writing the
	// version file, copying artifacts or creating anything remotely.
	DryRun bool
}

// Deps are the Runner's collaborators. Lock, Store, Namer and Publisher are
// required; the rest may be nil.
type Deps struct {
	Lock      process.ProcessLocker
	Store     *version.Store
	Namer     *artifact.Namer
	Publisher *publish.Publisher
	Mirror    Mirror
	Ledger    Recorder
	Logger    *logging.Logger
	Telemetry *telemetry.Provider

	// NewRunID defaults to a random UUID.
	NewRunID func() string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Outcome describes one release run.
type Outcome struct {
	RunID string

	// Version is meaningful only when Claimed is true.
	Version version.Version
	Claimed bool

	Artifacts []artifact.Artifact

	// Result is the publication result. Zero for dry runs.
	Result publish.Result

	// Plan is set for dry runs only.
	Plan *publish.Plan

	// Mirrored lists gs:// URLs of mirrored assets.
	Mirrored []string

	// Committed reports whether the version file was advanced.
	Committed bool
}

// Runner executes the release stage.
type Runner struct {
	opts Options
	deps Deps
}

// NewRunner validates opts and deps.
func NewRunner(opts Options, deps Deps) (*Runner, error) {
	if deps.Lock == nil || deps.Store == nil || deps.Namer == nil || deps.Publisher == nil {
		return nil, errors.New("release: lock, store, namer and publisher are required")
	}
	if opts.Texts == nil {
		return nil, errors.New("release: texts are required")
	}
	switch opts.Commit {
	case "":
		opts.Commit = config.CommitEager
	case config.CommitEager, config.CommitDeferred:
	default:
		return nil, &config.Error{Field: "version.commit", Err: fmt.Errorf("unknown commit policy %q", opts.Commit)}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Nop()
	}
	if deps.NewRunID == nil {
		deps.NewRunID = func() string { return uuid.New().String() }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runner{opts: opts, deps: deps}, nil
}

// =============================================================================
// Run
// =============================================================================

// Run performs one release.
//
// # Description
//
//  1. Acquire the release lock; a held lock is fatal.
//  2. Claim the version: eager commits now, deferred only peeks.
//  3. Copy the build outputs to their versioned names.
//  4. Publish tag, release and assets.
//  5. Deferred policy: commit the counter after a successful publish.
//  6. Mirror uploaded assets when configured. Failures are warnings.
//  7. Record the attempt in the ledger. Failures are warnings.
//
// # Outputs
//
//   - Outcome: Populated as far as the run got
//   - error: *process.LockHeldError, version.ErrCorruptVersionState,
//     *publish.RemoteAPIError, artifact I/O errors
func (r *Runner) Run(ctx context.Context) (out Outcome, err error) {
	out.RunID = r.deps.NewRunID()
	log := r.deps.Logger.With("run_id", out.RunID)
	started := r.deps.Now()

	ctx, span := r.deps.Telemetry.StartSpan(ctx, "relforge.release",
		attribute.String("run_id", out.RunID), attribute.Bool("dry_run", r.opts.DryRun))
	defer func() { telemetry.EndSpan(span, err) }()

	if err := r.deps.Lock.Acquire(); err != nil {
		return out, err
	}
	defer func() {
		if err := r.deps.Lock.Release(); err != nil {
			log.Warn("release lock not released", "error", err)
		}
	}()

	if r.opts.DryRun {
		err = r.dryRun(ctx, log, &out)
		return out, err
	}

	err = r.run(ctx, log, &out)
	outcome := ledger.OutcomeSucceeded
	if err != nil {
		outcome = ledger.OutcomeFailed
	}
	r.deps.Telemetry.Metrics.RecordRelease(ctx, string(outcome))
	r.record(ctx, log, out, started, err)
	return out, err
}

func (r *Runner) run(ctx context.Context, log *logging.Logger, out *Outcome) error {
	v, err := r.claimVersion()
	if err != nil {
		return err
	}
	out.Version = v
	out.Claimed = true
	out.Committed = r.opts.Commit == config.CommitEager
	log = log.With("version", v.String())
	log.Info("releasing", "tag", v.Tag(), "commit_policy", r.opts.Commit)

	artifacts, err := r.deps.Namer.Name(r.opts.BuildDir, v)
	if err != nil {
		return fmt.Errorf("name artifacts: %w", err)
	}
	out.Artifacts = artifacts

	req, err := r.request(v, artifact.Targets(artifacts))
	if err != nil {
		return err
	}
	res, err := r.deps.Publisher.Publish(ctx, req)
	out.Result = res
	if err != nil {
		return err
	}

	if r.opts.Commit == config.CommitDeferred {
		if err := r.deps.Store.Commit(v); err != nil {
			return fmt.Errorf("commit version after publish: %w", err)
		}
		out.Committed = true
	}

	for _, m := range res.Missing {
		log.Warn("asset missing from release", "path", m)
	}
	log.Info("release published", "url", res.Release.HTMLURL, "uploaded", len(res.Uploaded))

	r.mirror(ctx, log, out)
	return nil
}

func (r *Runner) dryRun(ctx context.Context, log *logging.Logger, out *Outcome) error {
	v, err := r.deps.Store.Peek()
	if err != nil {
		return err
	}
	out.Version = v
	out.Claimed = true

	artifacts, err := r.deps.Namer.Plan(r.opts.BuildDir, v)
	if err != nil {
		return err
	}
	out.Artifacts = artifacts

	// The namer has not copied anything, so check the sources instead.
	sources := make([]string, len(artifacts))
	for i, a := range artifacts {
		sources[i] = a.SourcePath
	}
	req, err := r.request(v, sources)
	if err != nil {
		return err
	}
	plan, err := r.deps.Publisher.Plan(ctx, req)
	if err != nil {
		return err
	}
	out.Plan = &plan
	log.Info("dry run", "tag", v.Tag(), "state", plan.InitialState.String(),
		"present", len(plan.Present), "missing", len(plan.Missing))
	return nil
}

func (r *Runner) claimVersion() (version.Version, error) {
	if r.opts.Commit == config.CommitDeferred {
		return r.deps.Store.Peek()
	}
	return r.deps.Store.BumpAndPersist()
}

func (r *Runner) request(v version.Version, assets []string) (publish.Request, error) {
	title, body, tagMessage, err := r.opts.Texts.Render(TextData{
		Product: r.opts.Product,
		Version: v.String(),
		Tag:     v.Tag(),
	})
	if err != nil {
		return publish.Request{}, err
	}
	return publish.Request{
		Version:    v.String(),
		Tag:        v.Tag(),
		Name:       title,
		Body:       body,
		TagMessage: tagMessage,
		Branch:     r.opts.Branch,
		Assets:     assets,
	}, nil
}

func (r *Runner) mirror(ctx context.Context, log *logging.Logger, out *Outcome) {
	if r.deps.Mirror == nil || len(out.Result.Uploaded) == 0 {
		return
	}
	uploaded := make(map[string]bool, len(out.Result.Uploaded))
	for _, a := range out.Result.Uploaded {
		uploaded[a.Name] = true
	}
	var paths []string
	for _, a := range out.Artifacts {
		if uploaded[filepath.Base(a.TargetPath)] {
			paths = append(paths, a.TargetPath)
		}
	}
	urls, err := r.deps.Mirror.Mirror(ctx, out.Version.Tag(), paths)
	out.Mirrored = urls
	if err != nil {
		log.Warn("mirror incomplete", "error", err)
	}
}

func (r *Runner) record(ctx context.Context, log *logging.Logger, out Outcome, started time.Time, runErr error) {
	if r.deps.Ledger == nil {
		return
	}
	rec := ledger.Record{
		RunID:      out.RunID,
		StartedAt:  started,
		FinishedAt: r.deps.Now(),
		Outcome:    ledger.OutcomeSucceeded,
		ReleaseURL: out.Result.Release.HTMLURL,
		Missing:    out.Result.Missing,
	}
	if out.Claimed {
		rec.Counter = out.Version.Counter
		rec.Version = out.Version.String()
		rec.Tag = out.Version.Tag()
	}
	if runErr != nil {
		rec.Outcome = ledger.OutcomeFailed
		rec.Error = runErr.Error()
	}
	for _, a := range out.Result.Uploaded {
		rec.Uploaded = append(rec.Uploaded, a.Name)
	}
	for _, f := range out.Result.Failed {
		rec.Failed = append(rec.Failed, f.Path)
	}
	// The run's context may already be cancelled; the record still matters.
	if err := r.deps.Ledger.Put(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("ledger write failed", "error", err)
	}
}
