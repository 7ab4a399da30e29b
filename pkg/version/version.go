package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// A reusable structure to allow developers to set their application versions.
type Version struct {
	Major int    // Major version component of the current release
	Minor int    // Minor version component of the current release
	Patch int    // Patch version component of the current release
	Meta  string // Version metadata to append to the version string
}

// Provides a string with the version
func (version *Version) GetVersion() string {
	return fmt.Sprintf("%d.%d.%d", version.Major, version.Minor, version.Patch)
}

// Provides a string with the version and Meta. When no Meta was set at build time,
// the VCS revision recorded by the Go toolchain is used instead.
func (version *Version) GetVersionWithMeta() string {
	v := version.GetVersion()
	meta := version.Meta
	if meta == "" {
		meta = vcsRevision()
	}
	if meta != "" {
		v += "-" + meta
	}
	return v
}

// GoVersion is the toolchain the binary was built with.
func (version *Version) GoVersion() string {
	return runtime.Version()
}

// String is the full version line printed by the version command.
func (version *Version) String() string {
	return fmt.Sprintf("mev-commit-indexer %s (%s %s/%s)", version.GetVersionWithMeta(), version.GoVersion(), runtime.GOOS, runtime.GOARCH)
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return setting.Value[:7]
		}
	}
	return ""
}
