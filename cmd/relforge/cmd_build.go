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
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
	"github.com/AleutianAI/relforge/cmd/relforge/internal/builder"
	"github.com/AleutianAI/relforge/pkg/ux"
)

type buildFlags struct {
	remake       bool
	debug        bool
	withDebugger bool
	clearBuild   bool
	buildType    string
	noRun        bool
	pkg          bool
}

func (c *cli) buildCmd() *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Configure, compile, then run or package the project",
		Long: `Builds into build/<type>. The tree is configured when --remake is given
or when it has never been configured. After compiling, the binary is run
(under the debugger with --debug or --with-debugger), packaged with CPack
(--package), or left alone (--no-run).`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBuild(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.BoolVarP(&f.remake, "remake", "r", false, "configure before building")
	fl.BoolVarP(&f.debug, "debug", "d", false, "build Debug and run under the debugger")
	fl.BoolVarP(&f.withDebugger, "with-debugger", "w", false, "run under the debugger without forcing Debug")
	fl.BoolVarP(&f.clearBuild, "clear-build", "c", false, "delete and recreate the build directory first")
	fl.StringVarP(&f.buildType, "build-type", "b", "", "build type: "+buildTypeNames())
	fl.BoolVarP(&f.noRun, "no-run", "n", false, "build only")
	fl.BoolVarP(&f.pkg, "package", "p", false, "package with CPack instead of running")
	return cmd
}

func (c *cli) runBuild(cmd *cobra.Command, f buildFlags) error {
	bc, err := builder.NewConfiguration(builder.Options{
		BuildType:    f.buildType,
		Debug:        f.debug,
		WithDebugger: f.withDebugger,
		ClearBuild:   f.clearBuild,
		Reconfigure:  f.remake,
		Package:      f.pkg,
		NoRun:        f.noRun,
		DefaultType:  builder.BuildType(c.cfg.Build.DefaultType),
	})
	if err != nil {
		return err
	}

	driver := c.newDriver()
	ux.Title(fmt.Sprintf("%s %s build", c.cfg.Project.Product, bc.BuildType()))
	ux.Step("directory", driver.Directory(bc.BuildType()).Path())

	res, err := driver.Run(cmd.Context(), bc)
	if err != nil {
		return err
	}

	ux.Success(fmt.Sprintf("%s build finished in %s", res.BuildType, res.Elapsed.Round(10*time.Millisecond)))
	if len(res.Components) > 0 {
		ux.Info("cpack components: " + strings.Join(res.Components, " "))
	}
	return nil
}

func (c *cli) newDriver() *builder.Driver {
	return builder.NewDriver(driverConfig(c.cfg), c.deps.processManager(), c.logger, c.tel)
}

func driverConfig(cfg *config.Config) builder.DriverConfig {
	return builder.DriverConfig{
		Root:           cfg.Project.Root,
		Executable:     cfg.Project.Executable,
		Jobs:           cfg.Build.Jobs,
		Generator:      cfg.Build.Generator,
		PackageDefines: cfg.Build.PackageDefines,
		Debugger:       cfg.Build.Debugger,
		CMake:          cfg.Build.CMake,
		CPack:          cfg.Build.CPack,
	}
}

func buildTypeNames() string {
	names := make([]string, len(builder.ValidBuildTypes))
	for i, bt := range builder.ValidBuildTypes {
		names[i] = string(bt)
	}
	return strings.Join(names, ", ")
}
