// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signalBuild returns a BuildFunc that reports each call on the channel and
// returns the next error from errs (nil once errs is exhausted).
func signalBuild(errs ...error) (BuildFunc, <-chan struct{}) {
	calls := make(chan struct{}, 16)
	n := 0
	return func(ctx context.Context) error {
		var err error
		if n < len(errs) {
			err = errs[n]
		}
		n++
		calls <- struct{}{}
		return err
	}, calls
}

func waitBuild(t *testing.T, calls <-chan struct{}) {
	t.Helper()
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a build")
	}
}

func assertNoBuild(t *testing.T, calls <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-calls:
		t.Fatal("unexpected extra build")
	case <-time.After(within):
	}
}

func runLoop(t *testing.T, w *Watcher, changes <-chan Change) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.loop(ctx, changes)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestLoop_DebouncesBurstIntoOneBuild(t *testing.T) {
	build, calls := signalBuild()
	w := New(Options{Debounce: 30 * time.Millisecond}, build, nil)
	changes := make(chan Change, 8)
	runLoop(t, w, changes)

	for i := 0; i < 5; i++ {
		changes <- Change{Path: "src/main.cpp", Op: fsnotify.Write}
	}

	waitBuild(t, calls)
	assertNoBuild(t, calls, 150*time.Millisecond)
}

func TestLoop_FailedBuildKeepsWatching(t *testing.T) {
	build, calls := signalBuild(errors.New("undefined reference"))
	w := New(Options{Debounce: 10 * time.Millisecond}, build, nil)
	changes := make(chan Change, 8)
	runLoop(t, w, changes)

	changes <- Change{Path: "src/a.cpp"}
	waitBuild(t, calls)

	changes <- Change{Path: "src/a.cpp"}
	waitBuild(t, calls)
}

func TestLoop_InitialBuild(t *testing.T) {
	build, calls := signalBuild()
	w := New(Options{InitialBuild: true}, build, nil)
	runLoop(t, w, make(chan Change))

	waitBuild(t, calls)
}

func TestIgnored(t *testing.T) {
	w := New(Options{Root: "/proj"}, nil, nil)
	tests := []struct {
		path string
		want bool
	}{
		{"/proj/src/main.cpp", false},
		{"/proj/CMakeLists.txt", false},
		{"/proj/build/Release/CMakeCache.txt", true},
		{"/proj/.relforge/ledger/000001.vlog", true},
		{"/proj/src/.main.cpp.swp", true},
		{"/proj/src/main.cpp~", true},
		{"/proj/src/build", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, w.ignored(filepath.FromSlash(tt.path)))
		})
	}
}

func TestIgnored_RootInsideBuildDirectory(t *testing.T) {
	w := New(Options{Root: "/home/ci/build/game"}, nil, nil)
	assert.False(t, w.ignored(filepath.FromSlash("/home/ci/build/game/src/main.cpp")))
}

func TestRun_NothingToWatch(t *testing.T) {
	w := New(Options{Root: t.TempDir(), Paths: []string{"src", "include"}}, func(context.Context) error { return nil }, nil)
	assert.ErrorIs(t, w.Run(context.Background()), ErrNothingToWatch)
}

func TestRun_RebuildsOnSourceChange(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0755))

	build, calls := signalBuild()
	w := New(Options{
		Root:         root,
		Paths:        []string{"src", "include"},
		Debounce:     20 * time.Millisecond,
		InitialBuild: true,
	}, build, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The initial build starts only after the watches are registered.
	waitBuild(t, calls)

	require.NoError(t, os.WriteFile(filepath.Join(src, "main.cpp"), []byte("int main() {}"), 0644))
	waitBuild(t, calls)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, w.Builds(), 2)
}
