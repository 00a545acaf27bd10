package squall

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version is the squall release.
const Version = "0.3.0"

// Build describes the running binary.
type Build struct {
	Version  string
	Go       string
	Commit   string
	Time     string
	Modified bool
}

// ReadBuild reports the running binary, including the vcs stamps the go
// tool embeds when building from a checkout.
func ReadBuild() Build {
	b := Build{Version: Version, Go: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Commit = s.Value
		case "vcs.time":
			b.Time = s.Value
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// String renders the build as `squall version` prints it.
func (b Build) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Squall %s (%s)\n", b.Version, b.Go)
	if b.Commit != "" {
		commit := b.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		if b.Modified {
			commit += "-dirty"
		}
		fmt.Fprintf(&sb, "commit %s", commit)
		if b.Time != "" {
			fmt.Fprintf(&sb, " built %s", b.Time)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
