// Package version reports build metadata. Release builds set the variables
// with -ldflags "-X github.com/smazurov/qrgrabber/internal/version.Version=v1.2.0";
// other builds fall back to the VCS stamp the go tool embeds.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version" example:"v0.4.0"`
	GitCommit string `json:"git_commit,omitempty" example:"1f2e3d4c5b6a"`
	BuildDate string `json:"build_date,omitempty" example:"2026-03-01T12:00:00Z"`
	Modified  bool   `json:"modified,omitempty" doc:"Built from a tree with uncommitted changes"`
	GoVersion string `json:"go_version" example:"go1.24.11"`
	Platform  string `json:"platform" example:"linux/arm64"`
}

// Get returns version and build information.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withBuildInfo(info, bi)
	}
	return info
}

// withBuildInfo fills fields the linker flags left empty.
func withBuildInfo(info Info, bi *debug.BuildInfo) Info {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = shortRevision(s.Value)
			}
		case "vcs.time":
			if info.BuildDate == "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String returns the version, with the commit when it is known.
func String() string {
	info := Get()
	if info.GitCommit == "" {
		return info.Version
	}
	return info.Version + " (" + info.GitCommit + ")"
}
