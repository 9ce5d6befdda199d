// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package artifact copies fixed-name build outputs to version-stamped names.
//
// The build tool writes "<stem>.<ext>" (e.g. Product-win64.zip). For a
// release of version 0.0.5 the Namer copies it to
// "<product>-0.0.5-<platform>.<ext>" next to the source. Sources are never
// moved or modified, so a failed release can be retried against the same
// build directory.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/relforge/cmd/relforge/internal/version"
	"github.com/AleutianAI/relforge/pkg/logging"
)

// Artifact is one expected release asset.
type Artifact struct {
	// SourcePath is the fixed name produced by the build tool.
	SourcePath string

	// TargetPath is the version-stamped copy.
	TargetPath string

	// Present is false when the build did not produce SourcePath. The
	// target is then not created; upload reports it as missing.
	Present bool
}

// Config configures a Namer.
type Config struct {
	Product  string
	Platform string

	// SourceStem is the build tool's output name without extension.
	// Empty means "<Product>-<Platform>".
	SourceStem string

	// Extensions lists the expected asset kinds, without dots.
	// Empty means exe and zip.
	Extensions []string
}

// Namer derives and creates versioned artifact copies.
type Namer struct {
	cfg    Config
	logger *logging.Logger
}

// NewNamer creates a Namer. A nil logger disables logging.
func NewNamer(cfg Config, logger *logging.Logger) *Namer {
	if cfg.SourceStem == "" {
		cfg.SourceStem = cfg.Product + "-" + cfg.Platform
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{"exe", "zip"}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Namer{cfg: cfg, logger: logger}
}

// TargetName returns "<product>-<version>-<platform>.<ext>".
func (n *Namer) TargetName(v version.Version, ext string) string {
	return fmt.Sprintf("%s-%s-%s.%s", n.cfg.Product, v.String(), n.cfg.Platform, ext)
}

// SourceName returns "<stem>.<ext>".
func (n *Namer) SourceName(ext string) string {
	return n.cfg.SourceStem + "." + ext
}

// Plan returns the artifacts for v in dir without touching the filesystem
// beyond checking which sources exist.
func (n *Namer) Plan(dir string, v version.Version) ([]Artifact, error) {
	out := make([]Artifact, 0, len(n.cfg.Extensions))
	for _, ext := range n.cfg.Extensions {
		ext = strings.TrimPrefix(ext, ".")
		a := Artifact{
			SourcePath: filepath.Join(dir, n.SourceName(ext)),
			TargetPath: filepath.Join(dir, n.TargetName(v, ext)),
		}
		info, err := os.Stat(a.SourcePath)
		switch {
		case err == nil && info.Mode().IsRegular():
			a.Present = true
		case err == nil:
			return nil, fmt.Errorf("artifact %s is not a regular file", a.SourcePath)
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("stat artifact %s: %w", a.SourcePath, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Name copies every present source in dir to its versioned name.
//
// # Description
//
// Each extension is handled independently. A missing source is logged and
// reported with Present=false; it is not an error here. Copies go through a
// temp file and rename, so the target name never holds a partial file, and
// re-running overwrites the target with identical content.
//
// # Outputs
//
//   - []Artifact: One entry per configured extension, in order
//   - error: An I/O failure on a present source
func (n *Namer) Name(dir string, v version.Version) ([]Artifact, error) {
	artifacts, err := n.Plan(dir, v)
	if err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		if !a.Present {
			n.logger.Warn("artifact not produced by build", "path", a.SourcePath)
			continue
		}
		if err := copyFile(a.SourcePath, a.TargetPath); err != nil {
			return nil, err
		}
		n.logger.Info("artifact named", "source", filepath.Base(a.SourcePath), "target", filepath.Base(a.TargetPath))
	}
	return artifacts, nil
}

// Targets returns the target paths of artifacts, in order.
func Targets(artifacts []Artifact) []string {
	out := make([]string, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.TargetPath
	}
	return out
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("create artifact copy: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err = tmp.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod artifact copy: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close artifact copy: %w", err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename artifact copy: %w", err)
	}
	return nil
}
