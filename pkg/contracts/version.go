package contracts

import (
	"fmt"
	"runtime"
)

// Release identity. The web server and the processor CLI ship from one
// build, so both report the same version.
const (
	Version      = "1.2.0"
	VersionStage = "stable"

	// Repository is where the binaries point users for issues and docs.
	Repository = "https://github.com/example/teampulse"

	// DataFormatVersion versions the normalized record and aggregate table
	// schemas; consumers of exported reports pin against it
	DataFormatVersion = "v1"

	// APIVersion is the version of the HTTP API
	APIVersion = "v1"
)

// Stamped at release time, for example:
//
//	go build -ldflags "-X teampulse/pkg/contracts.GitCommit=$(git rev-parse --short HEAD)"
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

// BuildInfo is the identity of a running binary: the release constants,
// the ldflags stamps and the toolchain that produced it.
type BuildInfo struct {
	Version    string `json:"version"`
	Stage      string `json:"stage"`
	Repository string `json:"repository"`
	BuildTime  string `json:"build_time"`
	GitCommit  string `json:"git_commit"`
	GitBranch  string `json:"git_branch"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	DataFormat string `json:"data_format"`
	APIVersion string `json:"api_version"`
}

// CurrentBuild reports the identity of this binary. Fields that were not
// stamped read "unknown".
func CurrentBuild() BuildInfo {
	return BuildInfo{
		Version:    Version,
		Stage:      VersionStage,
		Repository: Repository,
		BuildTime:  BuildTime,
		GitCommit:  GitCommit,
		GitBranch:  GitBranch,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		DataFormat: DataFormatVersion,
		APIVersion: APIVersion,
	}
}

// ProductVersion is the one-line product banner shown in page footers.
func ProductVersion() string {
	return fmt.Sprintf("TeamPulse v%s", Version)
}

// FullVersion is the --version output: the banner plus build and
// toolchain details.
func FullVersion() string {
	b := CurrentBuild()
	return fmt.Sprintf("%s (%s, built %s, commit %s, %s)",
		ProductVersion(), b.Platform, b.BuildTime, b.GitCommit, b.GoVersion)
}
