// rescale-foldernav - browse and edit a remote folder tree from the
// command line, or serve one over the folder API.
package main

import (
	"os"

	"github.com/rescale/rescale-foldernav/internal/cli"
	"github.com/rescale/rescale-foldernav/internal/version"
)

// Version information, set by ldflags:
//
//	go build -ldflags "-X main.Version=v0.3.0 -X main.BuildTime=$(date -u +%F)"
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
