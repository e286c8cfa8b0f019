// Package version holds build-time version information for the cinerag
// binary. The variables are populated via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/cinerag-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/cinerag-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/cinerag-go/internal/version.BuildDate=2025-01-01"
//
// Without ldflags (e.g. `go run`) the values fall back to "dev" and "unknown".
package version

import "fmt"

// Version is the semantic version of the binary (e.g. "v1.2.3").
var Version = "dev"

// Commit is the short git SHA of the commit the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC date the binary was built (RFC3339 format).
var BuildDate = "unknown"

// String renders the version line printed by `cinerag version`.
func String() string {
	return fmt.Sprintf("cinerag %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
