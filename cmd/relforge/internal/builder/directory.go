// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builder

import (
	"fmt"
	"os"
	"path/filepath"
)

// Directory is the build directory for one build type: <root>/build/<type>.
// Directories for different types coexist and never affect each other.
type Directory struct {
	root      string
	buildType BuildType
}

// NewDirectory returns the directory for bt under root.
func NewDirectory(root string, bt BuildType) Directory {
	return Directory{root: root, buildType: bt}
}

// Path returns <root>/build/<type>.
func (d Directory) Path() string {
	return filepath.Join(d.root, "build", string(d.buildType))
}

// Prepare ensures the directory exists. When clear is set the directory is
// removed first, so it is empty afterwards.
func (d Directory) Prepare(clear bool) error {
	path := d.Path()
	if clear {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("clear build directory %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("create build directory %s: %w", path, err)
	}
	return nil
}

// Configured reports whether cmake has generated a cache in the directory.
func (d Directory) Configured() bool {
	_, err := os.Stat(filepath.Join(d.Path(), "CMakeCache.txt"))
	return err == nil
}
