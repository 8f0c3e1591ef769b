// Package version identifies the running build from the metadata the Go
// toolchain embeds into the binary.
package version

import (
	"runtime/debug"
	"sync"
)

// appName prefixes the rendered build string in logs and user agents.
const appName = "jervis"

// commitOverride is set via -ldflags for container builds that compile from
// a source tarball without .git. Empty means no override.
var commitOverride string

// Info describes the running build as reported by the health endpoint and
// the startup banner.
type Info struct {
	// Commit is the short (8 char) VCS revision, or "dev" when the binary
	// was built without stamping (go test, tarball builds).
	Commit string `json:"commit"`
	// GoVersion is the toolchain that produced the binary.
	GoVersion string `json:"goVersion,omitempty"`
	// Modified marks a build from a dirty working tree.
	Modified bool `json:"modified,omitempty"`
}

// Build resolves the build metadata. Resolution happens once; the result is
// shared by every caller.
var Build = sync.OnceValue(resolve)

func resolve() Info {
	info := Info{Commit: "dev"}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					info.Commit = shorten(s.Value)
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if commitOverride != "" {
		info.Commit = shorten(commitOverride)
	}
	return info
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// String renders "jervis/<commit>", with a "+dirty" suffix for builds from a
// modified working tree.
func (i Info) String() string {
	s := appName + "/" + i.Commit
	if i.Modified {
		s += "+dirty"
	}
	return s
}
