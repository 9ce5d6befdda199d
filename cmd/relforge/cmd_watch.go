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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/relforge/cmd/relforge/internal/builder"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/watch"
	"github.com/AleutianAI/relforge/pkg/ux"
)

func (c *cli) watchCmd() *cobra.Command {
	var buildType string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recompile whenever sources change",
		Long: `Compiles once, then recompiles after every burst of changes under
watch.paths. The binary is never run or packaged. Stop with Ctrl-C.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, err := builder.NewConfiguration(builder.Options{
				BuildType:   buildType,
				NoRun:       true,
				DefaultType: builder.BuildType(c.cfg.Build.DefaultType),
			})
			if err != nil {
				return err
			}
			driver := c.newDriver()

			w := watch.New(watch.Options{
				Root:         c.cfg.Project.Root,
				Paths:        c.cfg.Watch.Paths,
				Debounce:     c.cfg.Watch.Debounce,
				InitialBuild: true,
			}, func(ctx context.Context) error {
				res, err := driver.Compile(ctx, bc)
				if err != nil {
					return err
				}
				ux.Success(fmt.Sprintf("%s compiled in %s", res.BuildType, res.Elapsed.Round(10*time.Millisecond)))
				return nil
			}, c.logger)

			ux.Title("watching " + c.cfg.Project.Root)
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&buildType, "build-type", "b", "", "build type: "+buildTypeNames())
	return cmd
}
