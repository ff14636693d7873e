package main

import (
	"os"

	"github.com/go-delve/logpoint/cmd/logpoint/cmds"
	"github.com/go-delve/logpoint/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.LogpointVersion.Build = Build
	}
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
