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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/relforge/cmd/relforge/internal/version"
	"github.com/AleutianAI/relforge/pkg/ux"
)

func (c *cli) versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show or initialise the release counter",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.showVersion()
		},
	}
	cmd.AddCommand(c.versionInitCmd())
	return cmd
}

func (c *cli) store() *version.Store {
	return version.NewStore(c.cfg.Path(c.cfg.Version.File), c.cfg.Version.Major, c.cfg.Version.Minor)
}

func (c *cli) showVersion() error {
	store := c.store()
	v, err := store.Peek()
	if err != nil {
		return err
	}
	next := v
	next.Counter++
	ux.KeyValue([][2]string{
		{"file", store.Path()},
		{"next release", v.Tag()},
		{"after that", next.Tag()},
	})
	return nil
}

func (c *cli) versionInitCmd() *cobra.Command {
	var start int
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the version file",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if start < 0 {
				return &usageError{err: fmt.Errorf("--start must be >= 0, got %d", start)}
			}
			store := c.store()
			write := store.Init
			if force {
				write = store.Reset
			}
			if err := write(start); err != nil {
				if errors.Is(err, version.ErrAlreadyInitialized) {
					return &usageError{err: fmt.Errorf("%w (use --force to overwrite)", err)}
				}
				return err
			}
			c.logger.Info("version file written", "path", store.Path(), "counter", start)
			ux.Success(fmt.Sprintf("next release will be %s", version.Version{Major: c.cfg.Version.Major, Minor: c.cfg.Version.Minor, Counter: start}.Tag()))
			return nil
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "counter value of the next release")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing version file")
	return cmd
}
