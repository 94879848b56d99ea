// Package version reports build metadata.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set at link time with -ldflags "-X github.com/parleyhq/parley/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the resolved build metadata.
type Info struct {
	Version string
	Commit  string
	Date    string
	Go      string
	Tags    string
}

// Current fills unset link-time values from the embedded build info.
func Current() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, Go: runtime.Version()}

	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
		info.Version = build.Main.Version
	}
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "none" && len(setting.Value) >= 12 {
				info.Commit = setting.Value[:12]
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = setting.Value
			}
		case "-tags":
			info.Tags = setting.Value
		}
	}
	return info
}

// String renders one line of version output.
func String() string {
	info := Current()
	out := "parley " + info.Version + " (commit=" + info.Commit + ", date=" + info.Date + ", go=" + info.Go
	if info.Tags != "" {
		out += ", tags=" + info.Tags
	}
	return out + ")"
}
