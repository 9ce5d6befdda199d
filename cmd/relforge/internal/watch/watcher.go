// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch rebuilds the project whenever its sources change.
//
// A Watcher has two goroutines under one errgroup: the event pump turns
// fsnotify events into changes, and the rebuild loop debounces them and
// calls the build function. Only the rebuild loop builds, so builds never
// overlap. A failed build is logged and the loop keeps watching.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/relforge/pkg/logging"
)

// ErrNothingToWatch is returned by Run when none of the paths exist.
var ErrNothingToWatch = errors.New("watch: none of the configured paths exist")

// BuildFunc runs one build.
type BuildFunc func(ctx context.Context) error

// Change is one filesystem event that passed the ignore filter.
type Change struct {
	Path string
	Op   fsnotify.Op
	Time time.Time
}

// Options configures a Watcher.
type Options struct {
	// Root resolves relative Paths.
	Root string

	// Paths are watched; directories recursively.
	Paths []string

	// Debounce is the quiet period after the last change before a build
	// starts. Default: 500ms.
	Debounce time.Duration

	// Ignore lists base names or globs never reported. Defaults cover the
	// build tree, VCS metadata and editor temp files.
	Ignore []string

	// InitialBuild builds once before the first change.
	InitialBuild bool

	// BufferSize bounds pending changes. Overflow drops changes, never
	// builds. Default: 256.
	BufferSize int
}

// DefaultIgnore is used when Options.Ignore is empty.
var DefaultIgnore = []string{"build", ".relforge", ".git", "*.swp", "*.tmp", "*~", ".#*"}

// Watcher rebuilds on change.
type Watcher struct {
	opts   Options
	build  BuildFunc
	logger *logging.Logger

	builds int
}

// New creates a Watcher.
func New(opts Options, build BuildFunc, logger *logging.Logger) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if len(opts.Ignore) == 0 {
		opts.Ignore = DefaultIgnore
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{opts: opts, build: build, logger: logger}
}

// Builds returns how many builds have started. Not safe to call while Run
// is active.
func (w *Watcher) Builds() int {
	return w.builds
}

// Run watches until ctx is cancelled. Cancellation returns nil.
//
// # Outputs
//
//   - error: ErrNothingToWatch, or an fsnotify failure
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	n, err := w.addAll(fsw)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNothingToWatch
	}
	w.logger.Info("watching for changes", "paths", n, "debounce", w.opts.Debounce.String())

	changes := make(chan Change, w.opts.BufferSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.pump(gctx, fsw, changes)
	})
	g.Go(func() error {
		return w.loop(gctx, changes)
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// addAll registers every configured path and returns how many watches were
// added. Missing paths are skipped with a warning.
func (w *Watcher) addAll(fsw *fsnotify.Watcher) (int, error) {
	n := 0
	for _, p := range w.opts.Paths {
		if !filepath.IsAbs(p) && w.opts.Root != "" {
			p = filepath.Join(w.opts.Root, p)
		}
		info, err := os.Stat(p)
		if err != nil {
			w.logger.Warn("watch path not found, skipping", "path", p)
			continue
		}
		if !info.IsDir() {
			if err := fsw.Add(p); err != nil {
				return n, fmt.Errorf("watch %s: %w", p, err)
			}
			n++
			continue
		}
		added, err := w.addTree(fsw, p)
		n += added
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		n++
		return nil
	})
	return n, err
}

// pump forwards filtered events and follows newly created directories.
func (w *Watcher) pump(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Change) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if (ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write)) || w.ignored(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if _, err := w.addTree(fsw, ev.Name); err != nil {
						w.logger.Warn("cannot watch new directory", "path", ev.Name, "error", err)
					}
				}
			}
			select {
			case out <- Change{Path: ev.Name, Op: ev.Op, Time: time.Now()}:
			default:
				w.logger.Debug("change buffer full, dropping event", "path", ev.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// loop debounces changes and runs builds one at a time.
func (w *Watcher) loop(ctx context.Context, changes <-chan Change) error {
	if w.opts.InitialBuild {
		w.runBuild(ctx, nil)
	}

	var (
		pending []Change
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-changes:
			pending = append(pending, c)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			batch := pending
			pending = nil
			w.runBuild(ctx, batch)
		}
	}
}

func (w *Watcher) runBuild(ctx context.Context, batch []Change) {
	w.builds++
	if len(batch) > 0 {
		w.logger.Info("change detected, rebuilding", "files", len(dedupe(batch)), "first", batch[0].Path)
	}
	start := time.Now()
	if err := w.build(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("build failed, still watching", "error", err)
		return
	}
	w.logger.Info("build finished", "elapsed", time.Since(start).Round(time.Millisecond).String())
}

func (w *Watcher) ignored(path string) bool {
	rel := path
	if w.opts.Root != "" {
		if r, err := filepath.Rel(w.opts.Root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pattern := range w.opts.Ignore {
			if part == pattern {
				return true
			}
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

func dedupe(batch []Change) []string {
	seen := make(map[string]bool, len(batch))
	var out []string
	for _, c := range batch {
		if !seen[c.Path] {
			seen[c.Path] = true
			out = append(out, c.Path)
		}
	}
	return out
}
