package main

import (
	"github.com/3leaps/vr180/internal/cmd"
	"github.com/3leaps/vr180/internal/observability"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	err := cmd.Execute()
	cmd.ExitWithCode(observability.CLILogger, err)
}
