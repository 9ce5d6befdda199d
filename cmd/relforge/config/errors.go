// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration classifies every configuration failure: unreadable or
// invalid relforge.yaml, invalid build type, missing credential. The CLI maps
// it to exit code 2. Other packages wrap it into their own sentinels.
var ErrConfiguration = errors.New("configuration error")

// Error is a configuration failure tied to a file or field.
type Error struct {
	// Path is the config file, empty for defaults or environment.
	Path string

	// Field is the offending yaml path, e.g. "build.jobs". May be empty.
	Field string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Field != "":
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("config %s: %v", e.Field, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("config: %v", e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match ErrConfiguration.
func (e *Error) Is(target error) bool {
	return target == ErrConfiguration
}
