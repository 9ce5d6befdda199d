// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package github implements publish.Remote over the GitHub REST API.
//
// Requests are authenticated with a bearer token held by secrets.Credential
// and throttled client-side with a token bucket. GitHub Enterprise is
// supported through Config.APIURL and Config.UploadURL.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/relforge/cmd/relforge/internal/publish"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/secrets"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/telemetry"
	"github.com/AleutianAI/relforge/pkg/logging"
)

// ErrMissingCredential is returned by New without a credential. It matches
// config.ErrConfiguration.
var ErrMissingCredential = secrets.ErrMissingCredential

// ErrInvalidRepository is returned when owner or repo is empty.
var ErrInvalidRepository = errors.New("github: owner and repo are required")

// Config identifies the repository and API endpoints.
type Config struct {
	Owner string
	Repo  string

	// APIURL and UploadURL override api.github.com, e.g. for Enterprise
	// ("https://ghe.example.com/"). UploadURL defaults to APIURL.
	APIURL    string
	UploadURL string

	// RequestsPerSecond caps the request rate. Default: 5.
	RequestsPerSecond float64

	// Transport is the base HTTP transport. Default: http.DefaultTransport.
	Transport http.RoundTripper
}

// Remote talks to one GitHub repository.
type Remote struct {
	client  *gh.Client
	owner   string
	repo    string
	limiter *rate.Limiter
	logger  *logging.Logger
	tel     *telemetry.Provider
}

// New creates a Remote.
//
// # Outputs
//
//   - *Remote: Ready to use
//   - error: ErrMissingCredential when cred is nil, ErrInvalidRepository, or
//     a malformed endpoint URL
func New(cfg Config, cred *secrets.Credential, logger *logging.Logger, tel *telemetry.Provider) (*Remote, error) {
	if cred == nil {
		return nil, ErrMissingCredential
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, ErrInvalidRepository
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if tel == nil {
		tel = telemetry.Nop()
	}

	httpClient := &http.Client{Transport: &secrets.Transport{Credential: cred, Base: cfg.Transport}}
	client := gh.NewClient(httpClient)
	if cfg.APIURL != "" {
		upload := cfg.UploadURL
		if upload == "" {
			upload = cfg.APIURL
		}
		var err error
		client, err = client.WithEnterpriseURLs(cfg.APIURL, upload)
		if err != nil {
			return nil, fmt.Errorf("github endpoints: %w", err)
		}
	}

	return &Remote{
		client:  client,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
		tel:     tel,
	}, nil
}

// BranchTip implements publish.Remote.
func (r *Remote) BranchTip(ctx context.Context, branch string) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	b, resp, err := r.client.Repositories.GetBranch(ctx, r.owner, r.repo, branch, 1)
	r.observe(ctx, publish.OpBranchTip, resp)
	if err != nil {
		return "", err
	}
	sha := b.GetCommit().GetSHA()
	if sha == "" {
		return "", fmt.Errorf("branch %s has no commit", branch)
	}
	return sha, nil
}

// ProbeTag implements publish.Remote. Only a 404 means not found.
func (r *Remote) ProbeTag(ctx context.Context, tag string) publish.TagProbe {
	if err := r.wait(ctx); err != nil {
		return publish.TagProbe{Status: publish.TagProbeFailed, Err: err}
	}
	_, resp, err := r.client.Git.GetRef(ctx, r.owner, r.repo, "tags/"+tag)
	r.observe(ctx, publish.OpProbeTag, resp)
	switch {
	case err == nil:
		return publish.TagProbe{Status: publish.TagFound}
	case statusOf(err) == http.StatusNotFound:
		return publish.TagProbe{Status: publish.TagNotFound}
	default:
		return publish.TagProbe{Status: publish.TagProbeFailed, Err: err}
	}
}

// CreateTagObject implements publish.Remote.
func (r *Remote) CreateTagObject(ctx context.Context, tag, message, sha string) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	created, resp, err := r.client.Git.CreateTag(ctx, r.owner, r.repo, &gh.Tag{
		Tag:     gh.String(tag),
		Message: gh.String(message),
		Object:  &gh.GitObject{Type: gh.String("commit"), SHA: gh.String(sha)},
	})
	r.observe(ctx, publish.OpCreateTagObject, resp)
	if err != nil {
		return "", err
	}
	return created.GetSHA(), nil
}

// CreateTagRef implements publish.Remote. A 422 "already exists" maps to
// publish.ErrAlreadyExists.
func (r *Remote) CreateTagRef(ctx context.Context, tag, sha string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	_, resp, err := r.client.Git.CreateRef(ctx, r.owner, r.repo, &gh.Reference{
		Ref:    gh.String("refs/tags/" + tag),
		Object: &gh.GitObject{SHA: gh.String(sha)},
	})
	r.observe(ctx, publish.OpCreateTagRef, resp)
	if err != nil {
		if isAlreadyExists(err) {
			return fmt.Errorf("refs/tags/%s: %w", tag, publish.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

// CreateRelease implements publish.Remote.
func (r *Remote) CreateRelease(ctx context.Context, spec publish.ReleaseSpec) (publish.Release, error) {
	if err := r.wait(ctx); err != nil {
		return publish.Release{}, err
	}
	rel, resp, err := r.client.Repositories.CreateRelease(ctx, r.owner, r.repo, &gh.RepositoryRelease{
		TagName:    gh.String(spec.Tag),
		Name:       gh.String(spec.Name),
		Body:       gh.String(spec.Body),
		Draft:      gh.Bool(false),
		Prerelease: gh.Bool(false),
	})
	r.observe(ctx, publish.OpCreateRelease, resp)
	if err != nil {
		return publish.Release{}, err
	}
	return publish.Release{
		ID:      rel.GetID(),
		Tag:     rel.GetTagName(),
		Name:    rel.GetName(),
		Body:    rel.GetBody(),
		HTMLURL: rel.GetHTMLURL(),
	}, nil
}

// UploadAsset implements publish.Remote.
func (r *Remote) UploadAsset(ctx context.Context, release publish.Release, path string) (publish.Asset, error) {
	if err := r.wait(ctx); err != nil {
		return publish.Asset{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return publish.Asset{}, err
	}
	defer f.Close()

	asset, resp, err := r.client.Repositories.UploadReleaseAsset(ctx, r.owner, r.repo, release.ID,
		&gh.UploadOptions{Name: filepath.Base(path)}, f)
	r.observe(ctx, publish.OpUploadAsset, resp)
	if err != nil {
		return publish.Asset{}, err
	}
	return publish.Asset{
		ID:   asset.GetID(),
		Name: asset.GetName(),
		Size: int64(asset.GetSize()),
		URL:  asset.GetBrowserDownloadURL(),
	}, nil
}

func (r *Remote) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (r *Remote) observe(ctx context.Context, op string, resp *gh.Response) {
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	r.tel.Metrics.RecordAPIRequest(ctx, op, status)
	r.logger.Debug("github api", "op", op, "status", status)
}

func statusOf(err error) int {
	var er *gh.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode
	}
	return 0
}

func isAlreadyExists(err error) bool {
	var er *gh.ErrorResponse
	if !errors.As(err, &er) || er.Response == nil || er.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	if strings.Contains(strings.ToLower(er.Message), "already exists") {
		return true
	}
	for _, e := range er.Errors {
		if e.Code == "already_exists" || strings.Contains(strings.ToLower(e.Message), "already exists") {
			return true
		}
	}
	return false
}

var _ publish.Remote = (*Remote)(nil)
