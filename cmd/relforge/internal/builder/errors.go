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

import "fmt"

// Stage names one step of a build.
type Stage string

const (
	StagePrepare   Stage = "prepare"
	StageConfigure Stage = "configure"
	StageBuild     Stage = "build"
	StagePackage   Stage = "package"
	StageRun       Stage = "run"
)

// StageError is a fatal failure in one build stage. For tool stages Err is
// a *process.CommandError.
type StageError struct {
	Stage     Stage
	BuildType BuildType
	Err       error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.BuildType, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}
