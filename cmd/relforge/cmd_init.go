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
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/version"
	"github.com/AleutianAI/relforge/pkg/ux"
)

func (c *cli) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Write a default relforge.yaml and version file",
		Annotations: map[string]string{skipConfig: "true"},
		Args:        noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(c.configPath); err != nil {
				if errors.Is(err, os.ErrExist) {
					return &usageError{err: err}
				}
				return err
			}
			ux.Success("wrote " + c.configPath)

			// The default version file lives next to the config.
			def := config.DefaultConfig()
			path := filepath.Join(filepath.Dir(c.configPath), def.Project.Root, def.Version.File)
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := version.NewStore(path, def.Version.Major, def.Version.Minor).Init(0); err != nil {
					return err
				}
				ux.Success("wrote " + path)
			}
			ux.Info("edit release.owner and release.repo before running 'relforge release'")
			return nil
		},
	}
}
