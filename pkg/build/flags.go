// SPDX-License-Identifier: MIT
//
// Package build manages build metadata embedded into the binary at
// compile time via linker flags: application name, build timestamp,
// Git commit hash, and semantic version.
package build

import "fmt"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables populated by -ldflags during compilation.
// Development builds without ldflags fall back to the defaults below.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "intonation-toy",
		Description: "Real-time audio capture and pitch analysis pipeline",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies build information from the ldflags variables into
// the buildFlags struct. Call early in program startup. Variables left
// unset by the linker keep their development defaults.
func Initialize() error {
	if buildName != "" {
		buildFlags.Name = buildName
	}
	if buildTime != "" {
		buildFlags.Time = buildTime
	}
	if buildCommit != "" {
		buildFlags.Commit = buildCommit
	}
	if buildVersion != "" {
		buildFlags.Version = buildVersion
	}
	if buildFlags.Name == "" {
		return fmt.Errorf("build name must not be empty")
	}
	return nil
}

// GetBuildFlags returns the current build information. Initialize()
// should be called first so ldflags values are reflected.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
