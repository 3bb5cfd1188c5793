// Package buildinfo carries version metadata stamped by the release build.
package buildinfo

// Set via -ldflags, for example:
//
//	-X 'github.com/m3rciful/funnelbot/core/buildinfo.Version=v0.4.0'
//	-X 'github.com/m3rciful/funnelbot/core/buildinfo.Commit=1f2e3d4'
//	-X 'github.com/m3rciful/funnelbot/core/buildinfo.Date=2026-10-01T09:00:00Z'
var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)

// String renders the build identity for startup logs and /health.
func String() string {
	if Date == "" {
		return Version + "+" + Commit
	}
	return Version + "+" + Commit + " (" + Date + ")"
}
