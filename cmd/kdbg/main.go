package main

import (
	"os"

	"github.com/xux-core/kdbg/cmd/kdbg/cmds"
	"github.com/xux-core/kdbg/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.KdbgVersion.Build = Build
	}
	if err := cmds.New(false).Execute(); err != nil {
		os.Exit(1)
	}
}
