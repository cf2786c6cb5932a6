package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stub(t *testing.T, version, commit, built string, info *debug.BuildInfo) {
	t.Helper()
	oldVersion, oldCommit, oldTime, oldRead := Version, GitCommit, BuildTime, readBuildInfo
	t.Cleanup(func() {
		Version, GitCommit, BuildTime, readBuildInfo = oldVersion, oldCommit, oldTime, oldRead
	})
	Version, GitCommit, BuildTime = version, commit, built
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
}

func vcs(rev, modified, when string) *debug.BuildInfo {
	return &debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: rev},
			{Key: "vcs.modified", Value: modified},
			{Key: "vcs.time", Value: when},
		},
	}
}

func TestVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		info    *debug.BuildInfo
		want    string
		short   string
		release bool
	}{
		{
			name:    "stamped release",
			version: "v1.2.3",
			commit:  "0123456789abcdef",
			want:    "v1.2.3",
			short:   "v1.2.3 (0123456)",
			release: true,
		},
		{
			name:    "module version",
			version: "dev",
			commit:  "unknown",
			info:    &debug.BuildInfo{Main: debug.Module{Version: "v0.4.0"}},
			want:    "v0.4.0",
			short:   "v0.4.0",
			release: true,
		},
		{
			name:    "vcs build",
			version: "dev",
			commit:  "unknown",
			info:    vcs("abcdef0123456789", "true", "2026-01-02T03:04:05Z"),
			want:    "dev-abcdef0",
			short:   "dev-abcdef0",
		},
		{
			name:    "nothing known",
			version: "dev",
			commit:  "unknown",
			want:    "dev",
			short:   "dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub(t, tt.version, tt.commit, "unknown", tt.info)
			assert.Equal(t, tt.want, GetVersion())
			assert.Equal(t, tt.short, GetShortVersion())
			assert.Equal(t, tt.release, IsRelease())
		})
	}
}

func TestBuildInfo(t *testing.T) {
	stub(t, "dev", "unknown", "unknown", vcs("abcdef0123456789", "true", "2026-01-02T03:04:05Z"))

	info := GetBuildInfo()
	assert.Equal(t, "abcdef0123456789", info.GitCommit)
	assert.True(t, info.Dirty)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), info.BuildTime.UTC())

	detailed := GetDetailedVersion()
	assert.Contains(t, detailed, "Commit: abcdef0123456789 (dirty)")
	assert.Contains(t, detailed, "Built: 2026-01-02T03:04:05Z")
	assert.True(t, strings.HasPrefix(detailed, "Version: dev-abcdef0"))
}

func TestParseISOTime(t *testing.T) {
	tests := []struct {
		in   string
		zero bool
	}{
		{"2026-10-19T10:00:00Z", false},
		{"2026-10-19T10:00:00", false},
		{"2026-10-19 10:00:00", false},
		{"unknown", true},
		{"", true},
		{"yesterday", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.zero, parseISOTime(tt.in).IsZero())
		})
	}

	stub(t, "dev", "unknown", "2025-05-05T05:05:05Z", nil)
	assert.Equal(t, 2025, GetBuildTime().Year())
}
