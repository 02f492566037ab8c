// Package version reports the portwatch build. Release builds override the
// values with -ldflags "-X github.com/hazz-dev/portwatch/internal/version.Version=...".
package version

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
