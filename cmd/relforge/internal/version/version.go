// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package version persists the release counter and derives version strings.
//
// The counter is a non-negative decimal integer in a plain text file. Each
// release run uses the current value and advances the file by exactly one.
// A counter of N yields Version "<major>.<minor>.N" and Tag "v<major>.<minor>.N".
package version

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrCorruptVersionState means the counter file is missing, unreadable,
	// non-numeric or negative.
	ErrCorruptVersionState = errors.New("corrupt version state")

	// ErrVersionAdvanced means the stored counter moved since Peek, so a
	// deferred Commit would skip or reuse a number.
	ErrVersionAdvanced = errors.New("version counter advanced concurrently")

	// ErrAlreadyInitialized is returned by Init when the file exists.
	ErrAlreadyInitialized = errors.New("version file already exists")
)

// =============================================================================
// Version
// =============================================================================

// Version is one release version.
type Version struct {
	Major   int
	Minor   int
	Counter int
}

// String returns "<major>.<minor>.<counter>".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Counter)
}

// Tag returns "v" + String().
func (v Version) Tag() string {
	return "v" + v.String()
}

// Validate checks that the tag is a well-formed semantic version.
func (v Version) Validate() error {
	if v.Major < 0 || v.Minor < 0 || v.Counter < 0 {
		return fmt.Errorf("%w: negative component in %s", ErrCorruptVersionState, v)
	}
	if !semver.IsValid(v.Tag()) {
		return fmt.Errorf("%w: %q is not a semantic version", ErrCorruptVersionState, v.Tag())
	}
	return nil
}

// =============================================================================
// Store
// =============================================================================

// Store reads and advances the counter file.
//
// # Thread Safety
//
// Store performs no locking. Callers that may race with another process
// hold a process.ProcessLock around Read/BumpAndPersist/Commit.
type Store struct {
	path  string
	major int
	minor int
}

// NewStore returns a Store for the counter file at path. major and minor
// prefix every derived Version.
func NewStore(path string, major, minor int) *Store {
	return &Store{path: path, major: major, minor: minor}
}

// Path returns the counter file path.
func (s *Store) Path() string {
	return s.path
}

// Read parses the stored counter.
//
// # Outputs
//
//   - int: The counter value
//   - error: Wraps ErrCorruptVersionState when the file is missing,
//     non-numeric or negative
func (s *Store) Read() (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorruptVersionState, err)
	}
	text := strings.TrimSpace(string(data))
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s holds %q, want a decimal integer", ErrCorruptVersionState, s.path, text)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s holds negative counter %d", ErrCorruptVersionState, s.path, n)
	}
	return n, nil
}

// Peek returns the Version the next release would use without writing.
func (s *Store) Peek() (Version, error) {
	n, err := s.Read()
	if err != nil {
		return Version{}, err
	}
	v := s.versionFor(n)
	if err := v.Validate(); err != nil {
		return Version{}, err
	}
	return v, nil
}

// BumpAndPersist writes counter+1 and returns the pre-increment Version.
//
// # Description
//
// The write commits immediately. A release that fails after this call has
// still consumed its number; use Peek plus Commit to publish first.
//
// # Example
//
//	// version.txt contains "41"
//	v, err := store.BumpAndPersist()
//	// v.String() == "0.0.41", version.txt now contains "42"
func (s *Store) BumpAndPersist() (Version, error) {
	v, err := s.Peek()
	if err != nil {
		return Version{}, err
	}
	if err := s.write(v.Counter + 1); err != nil {
		return Version{}, err
	}
	return v, nil
}

// Commit advances the counter past v, which must come from Peek. It fails
// with ErrVersionAdvanced if the stored counter is no longer v.Counter.
func (s *Store) Commit(v Version) error {
	n, err := s.Read()
	if err != nil {
		return err
	}
	if n != v.Counter {
		return fmt.Errorf("%w: expected %d, found %d", ErrVersionAdvanced, v.Counter, n)
	}
	return s.write(n + 1)
}

// Init creates the counter file holding start. An existing file is left
// untouched and ErrAlreadyInitialized returned.
func (s *Store) Init(start int) error {
	if start < 0 {
		return fmt.Errorf("%w: negative start %d", ErrCorruptVersionState, start)
	}
	if _, err := os.Stat(s.path); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, s.path)
	}
	return s.write(start)
}

// Reset overwrites the counter file with start, whatever it held.
func (s *Store) Reset(start int) error {
	if start < 0 {
		return fmt.Errorf("%w: negative start %d", ErrCorruptVersionState, start)
	}
	return s.write(start)
}

func (s *Store) versionFor(n int) Version {
	return Version{Major: s.major, Minor: s.minor, Counter: n}
}

// write replaces the file atomically through a temp file in the same
// directory.
func (s *Store) write(n int) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create version directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("write version file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(strconv.Itoa(n)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write version file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write version file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace version file: %w", err)
	}
	return nil
}
