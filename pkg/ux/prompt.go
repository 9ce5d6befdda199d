// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"errors"

	"github.com/charmbracelet/huh"
)

// ErrNotInteractive is returned by Confirm when no terminal is attached.
var ErrNotInteractive = errors.New("confirmation needs an interactive terminal; pass --yes")

// ErrDeclined is returned by Confirm when the user answers no or aborts.
var ErrDeclined = errors.New("cancelled by user")

// confirmFunc runs the prompt; replaced in tests.
var confirmFunc = func(title, description, affirmative string) (bool, error) {
	ok := false
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative(affirmative).
		Negative("Cancel").
		Value(&ok).
		Run()
	return ok, err
}

// Confirm asks a yes/no question before an irreversible action.
//
// # Outputs
//
//   - error: nil on yes, ErrDeclined on no or Ctrl-C, ErrNotInteractive
//     when stdout is not a terminal or the personality is machine
func Confirm(title, description, affirmative string) error {
	if !IsInteractive() {
		return ErrNotInteractive
	}
	ok, err := confirmFunc(title, description, affirmative)
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrDeclined
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}

// truncate shortens s to maxLen runes, ending in "..." when cut.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
