// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides external process execution and inter-process
locking for relforge.

# Overview

  - ProcessManager: runs the build toolchain (cmake, cpack, the built binary,
    the debugger) from argument vectors. No shell is involved, so paths with
    spaces or quotes need no escaping on any platform.
  - CommandError: the failure of one external command, carrying the argv,
    the exit code and the tail of stderr.
  - ProcessLock: advisory file lock that keeps two release runs from reading
    the same version counter.

# ProcessManager

	pm := process.NewDefaultProcessManager()
	if err := pm.Stream(ctx, buildDir, "cmake", "--build", buildDir, "-j", "8"); err != nil {
	    var cmdErr *process.CommandError
	    if errors.As(err, &cmdErr) {
	        fmt.Println(cmdErr.ExitCode)
	    }
	}

Tests use MockProcessManager, which records every call.

# Thread Safety

  - DefaultProcessManager is safe for concurrent use
  - ProcessLock is NOT safe for concurrent use from multiple goroutines

# Limitations

  - ProcessLock is advisory; a process that does not check it is not stopped
  - Locks on network filesystems may not be honoured
*/
package process
