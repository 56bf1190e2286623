// Package version exposes the daemon's build metadata.
package version

import (
	"fmt"
	"strings"
)

// Overridden at build time via -ldflags "-X ...".
var (
	Name      = "Cadenza"
	Version   = "1.1.0"
	BuildTime = ""
	GitCommit = ""
)

// Info is a snapshot of the build metadata, serializable for status
// endpoints and logs.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
}

// GetInfo returns the current build metadata.
func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}
}

// String renders a one-line banner, e.g. "Cadenza v1.1.0 (3f2c1a9) built
// 2026-08-30". Commit and build time are omitted when not stamped in.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		fmt.Fprintf(&b, " (%s)", i.GitCommit[:min(7, len(i.GitCommit))])
	}
	if i.BuildTime != "" {
		fmt.Fprintf(&b, " built %s", i.BuildTime)
	}
	return b.String()
}
