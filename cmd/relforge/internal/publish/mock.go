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
	"os"
	"path/filepath"
	"sync"
)

// MockRemote is an in-memory Remote for tests.
//
// It keeps tags, releases and uploads in maps so that repeated runs observe
// earlier state. The *Err fields inject failures per operation; UploadErr is
// keyed by asset base name.
type MockRemote struct {
	// Tip is the SHA returned by BranchTip. Default: "deadbeef".
	Tip string

	// Tags maps tag name to ref target SHA.
	Tags map[string]string

	// ProbeErr makes ProbeTag report TagProbeFailed.
	ProbeErr error

	BranchErr    error
	TagObjectErr error
	TagRefErr    error
	ReleaseErr   error
	UploadErr    map[string]error

	// Releases lists created releases in order.
	Releases []Release

	// Calls records operation names in order.
	Calls []string

	mu     sync.Mutex
	nextID int64
}

// NewMockRemote creates an empty MockRemote.
func NewMockRemote() *MockRemote {
	return &MockRemote{Tip: "deadbeef", Tags: map[string]string{}, UploadErr: map[string]error{}}
}

// BranchTip implements Remote.
func (m *MockRemote) BranchTip(ctx context.Context, branch string) (string, error) {
	m.record(OpBranchTip)
	if m.BranchErr != nil {
		return "", m.BranchErr
	}
	return m.Tip, nil
}

// ProbeTag implements Remote.
func (m *MockRemote) ProbeTag(ctx context.Context, tag string) TagProbe {
	m.record(OpProbeTag)
	if m.ProbeErr != nil {
		return TagProbe{Status: TagProbeFailed, Err: m.ProbeErr}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Tags[tag]; ok {
		return TagProbe{Status: TagFound}
	}
	return TagProbe{Status: TagNotFound}
}

// CreateTagObject implements Remote.
func (m *MockRemote) CreateTagObject(ctx context.Context, tag, message, sha string) (string, error) {
	m.record(OpCreateTagObject)
	if m.TagObjectErr != nil {
		return "", m.TagObjectErr
	}
	return "tag-" + sha, nil
}

// CreateTagRef implements Remote.
func (m *MockRemote) CreateTagRef(ctx context.Context, tag, sha string) error {
	m.record(OpCreateTagRef)
	if m.TagRefErr != nil {
		return m.TagRefErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Tags[tag]; ok {
		return ErrAlreadyExists
	}
	m.Tags[tag] = sha
	return nil
}

// CreateRelease implements Remote.
func (m *MockRemote) CreateRelease(ctx context.Context, spec ReleaseSpec) (Release, error) {
	m.record(OpCreateRelease)
	if m.ReleaseErr != nil {
		return Release{}, m.ReleaseErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r := Release{
		ID:      m.nextID,
		Tag:     spec.Tag,
		Name:    spec.Name,
		Body:    spec.Body,
		HTMLURL: "https://example.invalid/releases/" + spec.Tag,
	}
	m.Releases = append(m.Releases, r)
	return r, nil
}

// UploadAsset implements Remote.
func (m *MockRemote) UploadAsset(ctx context.Context, release Release, path string) (Asset, error) {
	m.record(OpUploadAsset)
	name := filepath.Base(path)
	if err := m.UploadErr[name]; err != nil {
		return Asset{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a := Asset{ID: m.nextID, Name: name, Size: info.Size(), URL: release.HTMLURL + "/" + name}
	for i := range m.Releases {
		if m.Releases[i].ID == release.ID {
			m.Releases[i].Assets = append(m.Releases[i].Assets, a)
		}
	}
	return a, nil
}

// CallCount returns how often op was called.
func (m *MockRemote) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (m *MockRemote) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, op)
}

var _ Remote = (*MockRemote)(nil)
