// Package version holds build metadata injected at link time:
//
//	-ldflags "-X embeddra/internal/version.version=v1.0.0 -X embeddra/internal/version.commit=abc123 -X embeddra/internal/version.buildTime=2026-01-01T00:00:00Z"
package version

import (
	"fmt"
	"io"
	"time"
)

//nolint:gochecknoglobals // Set via ldflags during build.
var (
	version   string
	commit    string
	buildTime string
)

// ApplicationName is shown in version output.
const ApplicationName = "Embeddra"

// Defaults used when build metadata was not injected.
const (
	DefaultVersion   = "dev"
	DefaultCommit    = "unknown"
	DefaultBuildTime = "unknown"
)

// Info is a snapshot of the build metadata with defaults applied.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
}

// Get returns the current build metadata.
func Get() Info {
	info := Info{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
	if info.Version == "" {
		info.Version = DefaultVersion
	}
	if info.Commit == "" {
		info.Commit = DefaultCommit
	}
	if info.BuildTime == "" {
		info.BuildTime = DefaultBuildTime
	}
	return info
}

// Write prints the version info. Short mode prints only the version number.
func (i Info) Write(w io.Writer, short bool) error {
	if short {
		_, err := fmt.Fprintln(w, i.Version)
		return err
	}
	_, err := fmt.Fprintf(w, "%s\nVersion: %s\nCommit: %s\nBuilt: %s\n",
		ApplicationName, i.Version, i.Commit, i.BuildTime)
	return err
}

// IsDevelopment reports whether this is an uninjected development build.
func (i Info) IsDevelopment() bool {
	return i.Version == DefaultVersion
}

// BuildTimestamp parses the build time, returning the zero time when the
// metadata is absent or unparseable.
func (i Info) BuildTimestamp() time.Time {
	t, err := time.Parse(time.RFC3339, i.BuildTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SetBuildVars overrides the injected metadata. Test use only.
func SetBuildVars(ver, com, bt string) {
	version = ver
	commit = com
	buildTime = bt
}
