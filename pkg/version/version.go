// Package version reports the version of logpoint and what it was built
// from.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version is a semantic version plus the revision it was built from.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
	// Build is the VCS revision. An unexpanded "$Id$" keyword is replaced
	// by the revision recorded by the go command, when there is one.
	Build string
}

// LogpointVersion is the version of this build.
var LogpointVersion = Version{
	Major: "0", Minor: "1", Patch: "0",
	Build: "$Id$",
}

func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Version: %s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		b.WriteString("-" + v.Metadata)
	}
	fmt.Fprintf(&b, "\nBuild: %s", v.revision())
	return b.String()
}

func (v Version) revision() string {
	if !strings.HasPrefix(v.Build, "$Id") {
		return v.Build
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return v.Build
}

// BuildInfo lists the Go version and the modules the binary was built
// with, one per line.
func BuildInfo() string {
	var b strings.Builder
	b.WriteString(runtime.Version() + "\n")
	info, ok := debug.ReadBuildInfo()
	if !ok {
		b.WriteString("not built in module mode\n")
		return b.String()
	}
	fmt.Fprintf(&b, " mod\t%s\t%s\n", info.Main.Path, info.Main.Version)
	for _, dep := range info.Deps {
		fmt.Fprintf(&b, " dep\t%s\t%s", dep.Path, dep.Version)
		if r := dep.Replace; r != nil {
			fmt.Fprintf(&b, "\t=> %s\t%s", r.Path, r.Version)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
