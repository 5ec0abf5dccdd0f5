// Package version exposes the supervisor's build metadata.
//
// Variables Version, Commit, and BuildTime are injected via Go ldflags and
// default to sensible values for local builds. Short feeds the User-Agent
// header of outbound registry requests; Full renders the version command
// output.
package version
