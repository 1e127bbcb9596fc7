// Package version provides build identification for the Stellar Player backend.
package version

import "fmt"

// Set at build time with -ldflags "-X github.com/edumarques81/stellar-player/internal/version.Version=..."
var (
	Name      = "Stellar Player"
	Version   = "0.1.0"
	BuildTime = ""
	GitCommit = ""
)

// Info is the JSON shape served by /api/v1/version.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
}

// GetInfo returns the current version information.
func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}
}

// String renders "Name vX.Y.Z (commit) built <time>", omitting empty parts.
func (i Info) String() string {
	s := fmt.Sprintf("%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		s += fmt.Sprintf(" (%s)", i.GitCommit[:min(7, len(i.GitCommit))])
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s
}
