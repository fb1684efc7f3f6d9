// Package buildinfo holds the version stamped into binaries, processed
// G-code headers and the API health report.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/matzehuels/bricklayers/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/bricklayers/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/bricklayers/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import "fmt"

// Name is the product name used in output markers.
const Name = "bricklayers"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Marker returns the comment line written at the top of marked output,
// without a line ending.
func Marker() string {
	return fmt.Sprintf("; postprocessed by %s %s", Name, Version)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} %s (commit %s, built %s)\n", Version, Commit, Date)
}
