// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command relforge builds a CMake project and publishes versioned releases
// of its artifacts to GitHub.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
)

// buildVersion is set with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

func main() {
	os.Exit(run(os.Args[1:], defaultDeps()))
}

// run executes one CLI invocation and returns the process exit code.
func run(args []string, d deps) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer memguard.Purge()

	c := newCLI(d)
	root := c.rootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	c.close()
	if err != nil {
		reportError(err)
	}
	return exitCode(ctx, err)
}
