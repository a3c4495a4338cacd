// Package version reports what build of sb is running. There is no
// semver; a build is identified by the commit it was cut from.
package version

import "fmt"

// Stamped by the build via -ldflags "-X ...". Left as "unknown" in
// plain go-build binaries.
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String renders the version line shown by `sb --version`.
func String() string {
	return fmt.Sprintf("sb dev (commit: %s, built: %s)", shortCommit(), BuildTime)
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
