package common

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Version and GitCommit are stamped with -ldflags at release time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit,omitempty" yaml:"git_commit,omitempty"`
	GoVersion string `json:"go_version,omitempty" yaml:"go_version,omitempty"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// ShortCommit trims the revision for display.
func (b BuildInfo) ShortCommit() string {
	if len(b.GitCommit) > 8 {
		return b.GitCommit[:8]
	}
	return b.GitCommit
}

func (b BuildInfo) String() string {
	commit := b.ShortCommit()
	if len(commit) == 0 || strings.EqualFold(commit, "unknown") {
		return b.Version
	}
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (git: %s)", b.Version, commit)
}

// GetBuildInfo prefers ldflags values and falls back to the module's
// embedded VCS metadata.
func GetBuildInfo() BuildInfo {
	build := BuildInfo{Version: Version, GitCommit: GitCommit}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return build
	}
	build.GoVersion = info.GoVersion

	if Version != "dev" {
		return build
	}

	if len(info.Main.Version) > 0 && info.Main.Version != "(devel)" {
		build.Version = info.Main.Version
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			build.GitCommit = setting.Value
		case "vcs.modified":
			build.Modified = setting.Value == "true"
		}
	}
	return build
}

// GetVersion is the display form used by the health probe and the CLI.
func GetVersion() string {
	return GetBuildInfo().String()
}
