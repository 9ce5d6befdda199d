// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package publish creates a tagged release with assets on a hosting service.
//
// # State Machine
//
//	TagAbsent ──create tag──▶ TagPresent ──create release──▶ ReleaseCreated
//	                                                              │
//	                                  Done ◀──upload each asset── AssetsUploading
//
// The initial state comes from Remote.ProbeTag. An existing tag skips tag
// creation; a failed probe aborts. A missing asset file is a warning and a
// failed upload does not stop the remaining uploads. Every other remote
// failure aborts with *RemoteAPIError. Nothing is retried.
package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/relforge/cmd/relforge/internal/telemetry"
	"github.com/AleutianAI/relforge/pkg/logging"
)

// State is a Publisher state.
type State int

const (
	StateTagAbsent State = iota
	StateTagPresent
	StateReleaseCreated
	StateAssetsUploading
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateTagAbsent:
		return "TagAbsent"
	case StateTagPresent:
		return "TagPresent"
	case StateReleaseCreated:
		return "ReleaseCreated"
	case StateAssetsUploading:
		return "AssetsUploading"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Request describes one release.
type Request struct {
	Version    string
	Tag        string
	Name       string
	Body       string
	TagMessage string
	Branch     string

	// Assets are local file paths, uploaded in order.
	Assets []string
}

// AssetFailure is an upload that failed.
type AssetFailure struct {
	Path string
	Err  error
}

// Result describes a publication. It is meaningful even when Publish
// returns an error: States shows how far the run got.
type Result struct {
	Release    Release
	TagCreated bool
	Uploaded   []Asset

	// Missing lists asset paths that did not exist locally.
	Missing []string

	// Failed lists assets whose upload returned an error.
	Failed []AssetFailure

	// States lists every state entered, in order.
	States []State
}

// Plan is the outcome of a dry run.
type Plan struct {
	InitialState State
	Present      []string
	Missing      []string
}

// Publisher runs the release state machine against a Remote.
type Publisher struct {
	remote Remote
	logger *logging.Logger
	tel    *telemetry.Provider
}

// NewPublisher creates a Publisher. A nil logger or telemetry provider
// disables that output.
func NewPublisher(remote Remote, logger *logging.Logger, tel *telemetry.Provider) *Publisher {
	if logger == nil {
		logger = logging.Nop()
	}
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Publisher{remote: remote, logger: logger, tel: tel}
}

// Publish ensures a release for req.Tag exists with req.Assets attached.
//
// # Description
//
// Probes the tag, creates the tag object and ref when absent, creates the
// release, then uploads each asset. A CreateTagRef conflict means another
// actor created the tag after the probe; it is treated as present.
//
// # Outputs
//
//   - Result: Progress and per-asset outcome
//   - error: *RemoteAPIError for probe, branch, tag or release failures
func (p *Publisher) Publish(ctx context.Context, req Request) (Result, error) {
	ctx, span := p.tel.StartSpan(ctx, "relforge.publish", attribute.String("tag", req.Tag))
	res, err := p.publish(ctx, req)
	telemetry.EndSpan(span, err)
	return res, err
}

func (p *Publisher) publish(ctx context.Context, req Request) (Result, error) {
	var res Result
	log := p.logger.With("tag", req.Tag)

	state, err := p.initialState(ctx, req.Tag)
	if err != nil {
		return res, err
	}
	res.States = append(res.States, state)

	if state == StateTagAbsent {
		created, err := p.createTag(ctx, req)
		if err != nil {
			return res, err
		}
		res.TagCreated = created
		res.States = append(res.States, StateTagPresent)
	} else {
		log.Info("tag already exists, skipping tag creation")
	}

	release, err := p.remote.CreateRelease(ctx, ReleaseSpec{Tag: req.Tag, Name: req.Name, Body: req.Body})
	if err != nil {
		return res, p.apiError(ctx, OpCreateRelease, err)
	}
	res.Release = release
	res.States = append(res.States, StateReleaseCreated)
	log.Info("release created", "name", release.Name, "url", release.HTMLURL)

	res.States = append(res.States, StateAssetsUploading)
	for _, path := range req.Assets {
		if !isFile(path) {
			log.Warn("asset not found, skipping", "path", path)
			res.Missing = append(res.Missing, path)
			continue
		}
		log.Info("uploading asset", "asset", filepath.Base(path))
		asset, err := p.remote.UploadAsset(ctx, release, path)
		if err != nil {
			log.Error("asset upload failed", "asset", filepath.Base(path), "error", err)
			res.Failed = append(res.Failed, AssetFailure{Path: path, Err: err})
			continue
		}
		res.Uploaded = append(res.Uploaded, asset)
		res.Release.Assets = append(res.Release.Assets, asset)
	}
	p.tel.Metrics.RecordAssets(ctx, "uploaded", len(res.Uploaded))
	p.tel.Metrics.RecordAssets(ctx, "missing", len(res.Missing))
	p.tel.Metrics.RecordAssets(ctx, "failed", len(res.Failed))

	res.States = append(res.States, StateDone)
	return res, nil
}

// Plan probes the tag and checks local assets without mutating anything.
func (p *Publisher) Plan(ctx context.Context, req Request) (Plan, error) {
	state, err := p.initialState(ctx, req.Tag)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{InitialState: state}
	for _, path := range req.Assets {
		if isFile(path) {
			plan.Present = append(plan.Present, path)
		} else {
			plan.Missing = append(plan.Missing, path)
		}
	}
	return plan, nil
}

func (p *Publisher) initialState(ctx context.Context, tag string) (State, error) {
	probe := p.remote.ProbeTag(ctx, tag)
	switch probe.Status {
	case TagFound:
		return StateTagPresent, nil
	case TagNotFound:
		return StateTagAbsent, nil
	default:
		err := probe.Err
		if err == nil {
			err = errors.New("tag probe failed")
		}
		return StateTagAbsent, p.apiError(ctx, OpProbeTag, err)
	}
}

// createTag moves TagAbsent to TagPresent. It reports false when the ref
// turned out to exist already.
func (p *Publisher) createTag(ctx context.Context, req Request) (bool, error) {
	sha, err := p.remote.BranchTip(ctx, req.Branch)
	if err != nil {
		return false, p.apiError(ctx, OpBranchTip, err)
	}

	tagSHA, err := p.remote.CreateTagObject(ctx, req.Tag, req.TagMessage, sha)
	if err != nil {
		return false, p.apiError(ctx, OpCreateTagObject, err)
	}

	err = p.remote.CreateTagRef(ctx, req.Tag, tagSHA)
	switch {
	case errors.Is(err, ErrAlreadyExists):
		p.logger.Info("tag ref created concurrently, treating as present", "tag", req.Tag)
		return false, nil
	case err != nil:
		return false, p.apiError(ctx, OpCreateTagRef, err)
	}

	p.logger.Info("created tag", "tag", req.Tag, "commit", sha)
	return true, nil
}

func (p *Publisher) apiError(ctx context.Context, op string, err error) error {
	p.tel.Metrics.RecordStageFailure(ctx, "publish")
	p.logger.Error("remote operation failed", "op", op, "error", err)
	return &RemoteAPIError{Op: op, Err: err}
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
