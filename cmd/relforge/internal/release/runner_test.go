// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package release

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/artifact"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/ledger"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/process"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/publish"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/version"
	"github.com/AleutianAI/relforge/pkg/logging"
)

// =============================================================================
// Fixtures
// =============================================================================

type fakeMirror struct {
	mu    sync.Mutex
	tag   string
	paths []string
	err   error
}

func (m *fakeMirror) Mirror(_ context.Context, tag string, assets []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tag = tag
	m.paths = append(m.paths, assets...)
	if m.err != nil {
		return nil, m.err
	}
	urls := make([]string, len(assets))
	for i, a := range assets {
		urls[i] = "gs://bucket/" + tag + "/" + filepath.Base(a)
	}
	return urls, nil
}

type fixture struct {
	root     string
	buildDir string
	verFile  string
	remote   *publish.MockRemote
	mirror   *fakeMirror
	ledger   *ledger.Ledger
	logs     *logging.Recorder
}

func newFixture(t *testing.T, counter string, outputs ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:     root,
		buildDir: filepath.Join(root, "build", "Release"),
		verFile:  filepath.Join(root, "version.txt"),
		remote:   publish.NewMockRemote(),
		mirror:   &fakeMirror{},
		logs:     logging.NewRecorder(),
	}
	require.NoError(t, os.MkdirAll(f.buildDir, 0755))
	require.NoError(t, os.WriteFile(f.verFile, []byte(counter), 0644))
	for _, o := range outputs {
		require.NoError(t, os.WriteFile(filepath.Join(f.buildDir, o), []byte("data:"+o), 0644))
	}

	l, err := ledger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	f.ledger = l
	return f
}

func (f *fixture) runner(t *testing.T, commit string, dryRun bool) *Runner {
	t.Helper()
	texts, err := ParseTexts("{{.Product}} {{.Version}}", "Automated release for version {{.Version}}", "Tag for version {{.Version}}")
	require.NoError(t, err)

	logger := logging.New(logging.Config{Quiet: true, Sink: f.logs})
	ids := 0
	r, err := NewRunner(Options{
		Product:  "Product",
		BuildDir: f.buildDir,
		Branch:   "main",
		Commit:   commit,
		Texts:    texts,
		DryRun:   dryRun,
	}, Deps{
		Lock:      process.NewProcessLock(f.lockPath()),
		Store:     version.NewStore(f.verFile, 0, 0),
		Namer:     artifact.NewNamer(artifact.Config{Product: "Product", Platform: "win64"}, logger),
		Publisher: publish.NewPublisher(f.remote, logger, nil),
		Mirror:    f.mirror,
		Ledger:    f.ledger,
		Logger:    logger,
		NewRunID: func() string {
			ids++
			return fmt.Sprintf("run-%d", ids)
		},
		Now: func() time.Time { return time.Date(2025, 3, 1, 12, 0, ids, 0, time.UTC) },
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) lockPath() string {
	return filepath.Join(f.root, ".relforge", "release.lock")
}

func (f *fixture) counter(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.verFile)
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) latest(t *testing.T) ledger.Record {
	t.Helper()
	rec, err := f.ledger.Latest(context.Background())
	require.NoError(t, err)
	return rec
}

// =============================================================================
// Tests
// =============================================================================

func TestRun_EagerSuccess(t *testing.T) {
	f := newFixture(t, "5", "Product-win64.exe", "Product-win64.zip")

	out, err := f.runner(t, config.CommitEager, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "0.0.5", out.Version.String())
	assert.True(t, out.Committed)
	assert.Equal(t, "6", f.counter(t))

	require.Len(t, f.remote.Releases, 1)
	rel := f.remote.Releases[0]
	assert.Equal(t, "v0.0.5", rel.Tag)
	assert.Equal(t, "Product 0.0.5", rel.Name)
	assert.Equal(t, "Automated release for version 0.0.5", rel.Body)
	require.Len(t, rel.Assets, 2)
	assert.Equal(t, "Product-0.0.5-win64.exe", rel.Assets[0].Name)
	assert.Equal(t, "Product-0.0.5-win64.zip", rel.Assets[1].Name)

	// Originals stay in place next to the versioned copies.
	for _, name := range []string{"Product-win64.exe", "Product-0.0.5-win64.exe", "Product-win64.zip", "Product-0.0.5-win64.zip"} {
		assert.FileExists(t, filepath.Join(f.buildDir, name))
	}

	assert.Equal(t, "v0.0.5", f.mirror.tag)
	assert.Len(t, out.Mirrored, 2)

	rec := f.latest(t)
	assert.Equal(t, out.RunID, rec.RunID)
	assert.Equal(t, ledger.OutcomeSucceeded, rec.Outcome)
	assert.Equal(t, "v0.0.5", rec.Tag)
	assert.Equal(t, 5, rec.Counter)
	assert.Equal(t, []string{"Product-0.0.5-win64.exe", "Product-0.0.5-win64.zip"}, rec.Uploaded)
}

func TestRun_CounterZero(t *testing.T) {
	f := newFixture(t, "0", "Product-win64.zip")

	out, err := f.runner(t, config.CommitEager, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "v0.0.0", out.Version.Tag())
	assert.Equal(t, "1", f.counter(t))
}

func TestRun_MissingAssetIsWarning(t *testing.T) {
	f := newFixture(t, "5", "Product-win64.zip")

	out, err := f.runner(t, config.CommitEager, false).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out.Result.Uploaded, 1)
	assert.Equal(t, "Product-0.0.5-win64.zip", out.Result.Uploaded[0].Name)
	assert.Equal(t, []string{filepath.Join(f.buildDir, "Product-0.0.5-win64.exe")}, out.Result.Missing)
	assert.NotEmpty(t, f.logs.AtLevel(logging.LevelWarn))
	assert.Equal(t, []string{filepath.Join(f.buildDir, "Product-0.0.5-win64.zip")}, f.mirror.paths)
}

func TestRun_ExistingTagSkipsTagCreation(t *testing.T) {
	f := newFixture(t, "5", "Product-win64.zip")
	f.remote.Tags["v0.0.5"] = "abc"

	out, err := f.runner(t, config.CommitEager, false).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, out.Result.TagCreated)
	assert.Zero(t, f.remote.CallCount(publish.OpCreateTagObject))
	assert.Equal(t, 1, f.remote.CallCount(publish.OpCreateRelease))
}

func TestRun_EagerFailureSpendsNumber(t *testing.T) {
	f := newFixture(t, "5", "Product-win64.zip")
	f.remote.ReleaseErr = errors.New("502 bad gateway")

	out, err := f.runner(t, config.CommitEager, false).Run(context.Background())

	var apiErr *publish.RemoteAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, publish.OpCreateRelease, apiErr.Op)
	assert.Equal(t, "6", f.counter(t))
	assert.True(t, out.Committed)

	rec := f.latest(t)
	assert.Equal(t, ledger.OutcomeFailed, rec.Outcome)
	assert.Contains(t, rec.Error, "502 bad gateway")
	assert.Empty(t, f.mirror.paths)
}

func TestRun_DeferredFailureKeepsNumber(t *testing.T) {
	f := newFixture(t, "5", "Product-win64.zip")
	f.remote.ReleaseErr = errors.New("502 bad gateway")

	out, err := f.runner(t, config.CommitDeferred, false).Run(context.Background())

	require.Error(t, err)
	assert.False(t, out.Committed)
	assert.Equal(t, "5", f.counter(t))
}

func TestRun_DeferredSuccessCommits(t *testing.T) {
	f := newFixture(t, "5", "Product-win64.zip")

	out, err := f.runner(t, config.CommitDeferred, false).Run(context.Background())

	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.Equal(t, "6", f.counter(t))
}

func TestRun_LockHeld(t *testing.T) {
	f := newFixture(t, "5", "Product-win64.zip")
	other := process.NewProcessLock(f.lockPath())
	require.NoError(t, other.Acquire())
	defer other.Release()

	_, err := f.runner(t, config.CommitEager, false).Run(context.Background())

	var held *process.LockHeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, "5", f.counter(t))
	assert.Empty(t, f.remote.Calls)
}

func TestRun_CorruptVersionState(t *testing.T) {
	f := newFixture(t, "banana", "Product-win64.zip")

	out, err := f.runner(t, config.CommitEager, false).Run(context.Background())

	assert.ErrorIs(t, err, version.ErrCorruptVersionState)
	assert.False(t, out.Claimed)
	assert.Empty(t, f.remote.Calls)

	rec := f.latest(t)
	assert.Equal(t, ledger.OutcomeFailed, rec.Outcome)
	assert.Empty(t, rec.Tag)
}

func TestRun_MirrorFailureIsWarning(t *testing.T) {
	f := newFixture(t, "5", "Product-win64.zip")
	f.mirror.err = errors.New("bucket gone")

	_, err := f.runner(t, config.CommitEager, false).Run(context.Background())

	require.NoError(t, err)
	var messages []string
	for _, e := range f.logs.AtLevel(logging.LevelWarn) {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "mirror incomplete")
	assert.Equal(t, ledger.OutcomeSucceeded, f.latest(t).Outcome)
}

func TestRun_DryRunChangesNothing(t *testing.T) {
	f := newFixture(t, "5", "Product-win64.exe")

	out, err := f.runner(t, config.CommitEager, true).Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, out.Plan)
	assert.Equal(t, publish.StateTagAbsent, out.Plan.InitialState)
	assert.Len(t, out.Plan.Present, 1)
	assert.Len(t, out.Plan.Missing, 1)
	assert.Equal(t, "5", f.counter(t))
	assert.NoFileExists(t, filepath.Join(f.buildDir, "Product-0.0.5-win64.exe"))
	assert.Equal(t, []string{publish.OpProbeTag}, f.remote.Calls)

	_, err = f.ledger.Latest(context.Background())
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestNewRunner_Validation(t *testing.T) {
	texts, err := ParseTexts("t", "b", "m")
	require.NoError(t, err)

	_, err = NewRunner(Options{Texts: texts}, Deps{})
	assert.Error(t, err)

	f := newFixture(t, "1")
	_, err = NewRunner(Options{Texts: texts, Commit: "lazy"}, Deps{
		Lock:      process.NewProcessLock(f.lockPath()),
		Store:     version.NewStore(f.verFile, 0, 0),
		Namer:     artifact.NewNamer(artifact.Config{Product: "P", Platform: "x"}, nil),
		Publisher: publish.NewPublisher(f.remote, nil, nil),
	})
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestParseTexts(t *testing.T) {
	_, err := ParseTexts("{{.Product", "", "m")
	assert.ErrorIs(t, err, config.ErrConfiguration)

	texts, err := ParseTexts("{{.Product}} {{.Version}}", "", "Tag for version {{.Version}} ({{.Tag}})")
	require.NoError(t, err)
	title, body, msg, err := texts.Render(TextData{Product: "Game", Version: "1.2.3", Tag: "v1.2.3"})
	require.NoError(t, err)
	assert.Equal(t, "Game 1.2.3", title)
	assert.Empty(t, body)
	assert.Equal(t, "Tag for version 1.2.3 (v1.2.3)", msg)

	texts, err = ParseTexts("{{.Nope}}", "", "m")
	require.NoError(t, err)
	_, _, _, err = texts.Render(TextData{})
	assert.Error(t, err)
}
