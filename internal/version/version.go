// Package version holds build information injected at link time.
package version

import (
	"fmt"
	"runtime"

	"github.com/aatumaykin/odoosweep/internal/constants"
)

var (
	Version   = constants.DefaultVersion
	BuildTime = constants.DefaultBuildTime
	GitCommit = constants.DefaultGitCommit
	GoVersion = constants.DefaultGoVersion
)

// SetInfo overrides the build information; empty values are ignored.
func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// Info returns the multi-line version banner.
func Info() string {
	gv := GoVersion
	if gv == constants.DefaultGoVersion {
		gv = runtime.Version()
	}
	return fmt.Sprintf("odoosweep %s\nBuild Time: %s\nGit Commit: %s\nGo Version: %s", Version, BuildTime, GitCommit, gv)
}

// UserAgent identifies the client in outgoing requests.
func UserAgent() string {
	return "odoosweep/" + Version
}
