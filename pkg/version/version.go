// Package version derives the application version from build metadata.
//
// Resolution order: -ldflags override, then VCS revision from
// debug.BuildInfo, then the "dev" fallback used by go test and non-git
// builds.
package version

import "runtime/debug"

// AppName is used in version strings, user agents, and the MCP handshake.
const AppName = "scout"

// gitCommitOverride is injected via -ldflags in container builds where the
// .git directory is not part of the build context.
var gitCommitOverride string

// GitCommit is the short (8 char) commit hash, or "dev".
var GitCommit = initGitCommit()

func initGitCommit() string {
	if gitCommitOverride != "" {
		return shorten(gitCommitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return shorten(s.Value)
			}
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "scout/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
