package version

import (
	"runtime"
	"runtime/debug"
	"strconv"
)

// Stamped by the release build, e.g.
//
//	go build -ldflags "-X santiago-a-pie/version.BuildVersion=v1.4.0"
//
// Local builds leave them empty and fall back to the VCS details embedded
// by the Go toolchain.
var (
	BuildVersion = "dev"
	GitSHA       = ""
	BuildTime    = ""
)

// Info is the body of GET /version.
type Info struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	GitSHA      string `json:"git_sha,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
	VCSModified *bool  `json:"vcs_modified,omitempty"`
	GoVersion   string `json:"go_version"`
	GOOS        string `json:"go_os"`
	GOARCH      string `json:"go_arch"`
}

// Get assembles the build info for the named service, preferring the
// ldflags values over what debug.ReadBuildInfo reports.
func Get(service string) Info {
	sha := GitSHA
	builtAt := BuildTime
	var dirty *bool

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if sha == "" {
					sha = setting.Value
				}
			case "vcs.time":
				if builtAt == "" {
					builtAt = setting.Value
				}
			case "vcs.modified":
				if dirty == nil {
					if b, err := strconv.ParseBool(setting.Value); err == nil {
						dirty = &b
					}
				}
			}
		}
	}

	return Info{
		Service:     service,
		Version:     BuildVersion,
		GitSHA:      sha,
		BuildTime:   builtAt,
		VCSModified: dirty,
		GoVersion:   runtime.Version(),
		GOOS:        runtime.GOOS,
		GOARCH:      runtime.GOARCH,
	}
}
