// Package version exposes the build metadata linked into the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version, Commit, and Date are injected via -ldflags at release time.
// A source build without ldflags falls back to whatever module metadata
// the Go toolchain embedded.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// String renders the one-line form used by --version output and startup
// log lines, e.g. "0.3.1 (4f2a91c, 2026-07-14) go1.25.5".
func String() string {
	v := resolve()
	out := v
	if Commit != "" {
		if Date != "" {
			out = fmt.Sprintf("%s (%s, %s)", v, Commit, Date)
		} else {
			out = fmt.Sprintf("%s (%s)", v, Commit)
		}
	}
	return out + " " + runtime.Version()
}

// resolve returns the ldflags version when set, otherwise the module
// version recorded by the toolchain (populated for "go install
// module@version" builds), otherwise "dev".
func resolve() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}
