// Package version holds build-time version info injected via ldflags.
//
// Set at compile time:
//
//	go build -ldflags "-X github.com/NicolasHaas/rendezvous/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/rendezvous/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/rendezvous/pkg/version.date=2026-01-01"
package version

import "fmt"

// Populated by -ldflags "-X ...". Defaults are used for local dev builds.
var (
	tag    = ""
	commit = "unknown"
	date   = "unknown"
)

// String returns the tag, the commit, or "dev", whichever is known first.
func String() string {
	if tag != "" {
		return tag
	}
	if commit != "unknown" {
		return commit
	}
	return "dev"
}

// Full returns the version line printed by the -version flag of both binaries.
func Full(binary string) string {
	switch {
	case tag != "":
		return fmt.Sprintf("%s %s (%s) built %s", binary, tag, commit, date)
	case commit != "unknown":
		return fmt.Sprintf("%s %s built %s", binary, commit, date)
	default:
		return binary + " dev"
	}
}
