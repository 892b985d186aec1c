// Package version holds build metadata. Values are overridden at link time:
//
//	go build -ldflags "-X github.com/keshon/doorbell/internal/version.Version=v1.2.0"
package version

import "fmt"

const AppName = "doorbell"

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", AppName, Version, Commit, BuildDate)
}
