// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// errWouldBlock is returned by tryLock when another process holds the lock.
var errWouldBlock = errors.New("lock would block")

// ProcessLocker is an exclusive inter-process lock.
type ProcessLocker interface {
	// Acquire takes the lock without blocking. Returns *LockHeldError when
	// another process owns it.
	Acquire() error

	// Release drops the lock. Safe to call when not held.
	Release() error

	// IsHeld reports whether this instance holds the lock.
	IsHeld() bool
}

// ProcessLock implements ProcessLocker with an advisory OS file lock
// (flock on Unix, LockFileEx on Windows).
//
// # Description
//
// The lock file lives at Path and its directory is created on Acquire.
// While held, the file contains the holder's PID so a second run can name
// the process that is in the way. The file is left in place on Release.
//
// # Example
//
//	lock := NewProcessLock(filepath.Join(root, ".relforge", "release.lock"))
//	if err := lock.Acquire(); err != nil {
//	    return err
//	}
//	defer lock.Release()
//
// # Limitations
//
//   - Advisory only
//   - The OS drops the lock if the holder crashes; the PID text stays behind
type ProcessLock struct {
	path string
	file *os.File
	held bool
}

// NewProcessLock creates a lock backed by the file at path. It does not
// acquire the lock.
func NewProcessLock(path string) *ProcessLock {
	return &ProcessLock{path: path}
}

// Acquire takes the lock without blocking.
func (p *ProcessLock) Acquire() error {
	if p.held {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0750); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", p.path, err)
	}

	if err := tryLock(f); err != nil {
		f.Close()
		if errors.Is(err, errWouldBlock) {
			return &LockHeldError{HolderPID: readPID(p.path), LockPath: p.path}
		}
		return fmt.Errorf("acquire lock %s: %w", p.path, err)
	}

	p.file = f
	p.held = true

	// PID is informational only; a failed write leaves the lock held.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return nil
}

// Release drops the lock if held.
func (p *ProcessLock) Release() error {
	if !p.held || p.file == nil {
		return nil
	}

	_ = p.file.Truncate(0)
	err := unlock(p.file)
	p.file.Close()
	p.file = nil
	p.held = false

	if err != nil {
		return fmt.Errorf("release lock %s: %w", p.path, err)
	}
	return nil
}

// IsHeld reports local state only.
func (p *ProcessLock) IsHeld() bool {
	return p.held
}

// Path returns the lock file path.
func (p *ProcessLock) Path() string {
	return p.path
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// LockHeldError is returned when another process holds the lock.
type LockHeldError struct {
	HolderPID int
	LockPath  string
}

// Error implements the error interface.
func (e *LockHeldError) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another relforge run holds %s (PID %d)", e.LockPath, e.HolderPID)
	}
	return fmt.Sprintf("another relforge run holds %s", e.LockPath)
}

var _ ProcessLocker = (*ProcessLock)(nil)
