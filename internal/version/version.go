// Package version reports build information stamped with -ldflags or read
// from the module build info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// BuildInfo is what `tdi version --format json` prints.
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time" yaml:"build_time"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	Dirty     bool      `json:"dirty,omitempty" yaml:"dirty,omitempty"`
}

// Stamped with -ldflags "-X github.com/conneroisu/tdi/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown" // RFC3339
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// vcsStamp is the subset of the toolchain's vcs.* settings we report.
type vcsStamp struct {
	module   string
	revision string
	time     string
	modified bool
}

func readStamp() vcsStamp {
	var s vcsStamp
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return s
	}
	if v := info.Main.Version; v != "(devel)" {
		s.module = v
	}
	for _, kv := range info.Settings {
		switch kv.Key {
		case "vcs.revision":
			s.revision = kv.Value
		case "vcs.time":
			s.time = kv.Value
		case "vcs.modified":
			s.modified = kv.Value == "true"
		}
	}
	return s
}

// stamped reports whether an ldflags variable was overridden.
func stamped(value, placeholder string) bool {
	return value != "" && value != placeholder
}

func abbrev(rev string) string {
	if len(rev) < 7 {
		return ""
	}
	return rev[:7]
}

// GetBuildInfo collects everything known about the running binary.
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: GetBuildTime(),
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Dirty:     IsDirty(),
	}
}

// GetVersion prefers the ldflags stamp, then the module version, then a
// dev version derived from the vcs revision.
func GetVersion() string {
	if stamped(Version, "dev") {
		return Version
	}
	s := readStamp()
	if s.module != "" {
		return s.module
	}
	if short := abbrev(s.revision); short != "" {
		return "dev-" + short
	}
	return "dev"
}

// GetGitCommit returns the full commit hash or "unknown".
func GetGitCommit() string {
	if stamped(GitCommit, "unknown") {
		return GitCommit
	}
	if rev := readStamp().revision; rev != "" {
		return rev
	}
	return "unknown"
}

// GetBuildTime returns the build time, falling back to the commit time.
func GetBuildTime() time.Time {
	if t := parseISOTime(BuildTime); !t.IsZero() {
		return t
	}
	return parseISOTime(readStamp().time)
}

// GetShortVersion is the one-line form used by `tdi --version` and the
// preview server's health endpoint.
func GetShortVersion() string {
	v := GetVersion()
	commit := GetGitCommit()
	short := abbrev(commit)
	switch {
	case short == "" || commit == "unknown":
		return v
	case strings.HasPrefix(v, "dev"):
		return "dev-" + short
	default:
		return fmt.Sprintf("%s (%s)", v, short)
	}
}

// GetDetailedVersion renders one "Label: value" line per known fact.
func GetDetailedVersion() string {
	info := GetBuildInfo()

	var b strings.Builder
	line := func(label, value string) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(label + ": " + value)
	}

	line("Version", info.Version)
	if info.GitCommit != "unknown" {
		commit := info.GitCommit
		if info.Dirty {
			commit += " (dirty)"
		}
		line("Commit", commit)
	}
	if !info.BuildTime.IsZero() {
		line("Built", info.BuildTime.Format(time.RFC3339))
	}
	line("Go", info.GoVersion)
	line("Platform", info.Platform)
	return b.String()
}

// IsRelease is false for every dev and dev-<rev> version.
func IsRelease() bool {
	v := GetVersion()
	return v != "dev" && !strings.HasPrefix(v, "dev-")
}

// IsDirty reports uncommitted changes at build time.
func IsDirty() bool {
	return readStamp().modified
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseISOTime returns the zero time for anything it cannot parse.
func parseISOTime(s string) time.Time {
	if !stamped(s, "unknown") {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
