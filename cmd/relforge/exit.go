// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/builder"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/process"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/publish"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/version"
	"github.com/AleutianAI/relforge/pkg/ux"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitInterrupted = 130
)

// usageError marks command-line parse failures.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exitCode maps an Execute error to the process exit code.
func exitCode(ctx context.Context, err error) int {
	var usage *usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return exitInterrupted
	case errors.Is(err, config.ErrConfiguration),
		errors.Is(err, ux.ErrNotInteractive),
		errors.As(err, &usage):
		return exitConfig
	default:
		return exitFailure
	}
}

// reportError prints err with a hint for the failures operators hit most.
func reportError(err error) {
	var (
		stage  *builder.StageError
		remote *publish.RemoteAPIError
		held   *process.LockHeldError
		usage  *usageError
	)
	switch {
	case errors.As(err, &usage):
		ux.Error(err.Error())
	case errors.Is(err, context.Canceled):
		ux.Warning("interrupted")
	case errors.Is(err, ux.ErrDeclined):
		ux.Warning("release cancelled, nothing was published")
	case errors.As(err, &stage):
		hint := ""
		if stage.Stage == builder.StageConfigure || stage.Stage == builder.StageBuild {
			hint = "Try again with --remake, or --clear-build for a clean tree."
		}
		ux.Fatal(string(stage.Stage)+" failed", err, hint)
	case errors.As(err, &remote):
		ux.Fatal("release failed", err, "Nothing is retried. Check the token scope and the release page before rerunning.")
	case errors.As(err, &held):
		ux.Fatal("release already running", err, "")
	case errors.Is(err, version.ErrCorruptVersionState):
		ux.Fatal("version file unusable", err, "Create it with: relforge version init")
	case errors.Is(err, config.ErrConfiguration):
		ux.Fatal("configuration error", err, "Run 'relforge init' to write a default relforge.yaml.")
	default:
		ux.Fatal("relforge failed", err, "")
	}
}
