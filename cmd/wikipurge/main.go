package main

import (
	"os"

	"github.com/Sternrassler/wikipurge/internal/cli"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2025-10-28"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, buildDate)

	// cobra already printed the error
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
