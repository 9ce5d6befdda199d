// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package publish

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// Remote Interface
// =============================================================================

// Remote is the hosting service API used by the Publisher.
//
// Implementations perform exactly one request per call and never retry.
// Errors other than ErrAlreadyExists are treated as fatal by the Publisher.
type Remote interface {
	// BranchTip returns the commit SHA at the head of branch.
	BranchTip(ctx context.Context, branch string) (string, error)

	// ProbeTag reports whether refs/tags/<tag> exists. A transport or
	// server failure is reported as TagProbeFailed, never as not found.
	ProbeTag(ctx context.Context, tag string) TagProbe

	// CreateTagObject creates an annotated tag object pointing at the commit
	// sha and returns the tag object's SHA.
	CreateTagObject(ctx context.Context, tag, message, sha string) (string, error)

	// CreateTagRef creates refs/tags/<tag> pointing at sha. Returns
	// ErrAlreadyExists if the ref exists.
	CreateTagRef(ctx context.Context, tag, sha string) error

	// CreateRelease creates a published (non-draft, non-prerelease) release.
	CreateRelease(ctx context.Context, spec ReleaseSpec) (Release, error)

	// UploadAsset attaches the file at path to release.
	UploadAsset(ctx context.Context, release Release, path string) (Asset, error)
}

// TagStatus is the outcome of a tag existence probe.
type TagStatus int

const (
	TagNotFound TagStatus = iota
	TagFound
	TagProbeFailed
)

// String returns "not_found", "found" or "failed".
func (s TagStatus) String() string {
	switch s {
	case TagFound:
		return "found"
	case TagProbeFailed:
		return "failed"
	default:
		return "not_found"
	}
}

// TagProbe is the result of Remote.ProbeTag. Err is set only for
// TagProbeFailed.
type TagProbe struct {
	Status TagStatus
	Err    error
}

// ReleaseSpec is the input to Remote.CreateRelease.
type ReleaseSpec struct {
	Tag  string
	Name string
	Body string
}

// Release is a created remote release.
type Release struct {
	ID      int64
	Tag     string
	Name    string
	Body    string
	HTMLURL string
	Assets  []Asset
}

// Asset is an uploaded release asset.
type Asset struct {
	ID   int64
	Name string
	Size int64
	URL  string
}

// =============================================================================
// Errors
// =============================================================================

// ErrAlreadyExists is returned by Remote.CreateTagRef when the ref exists.
var ErrAlreadyExists = errors.New("already exists")

// RemoteAPIError is a fatal hosting API failure in operation Op.
type RemoteAPIError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// Operation names used in RemoteAPIError.Op and telemetry.
const (
	OpBranchTip       = "get_branch"
	OpProbeTag        = "get_tag_ref"
	OpCreateTagObject = "create_tag_object"
	OpCreateTagRef    = "create_tag_ref"
	OpCreateRelease   = "create_release"
	OpUploadAsset     = "upload_asset"
)
