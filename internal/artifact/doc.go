// Package artifact manages installed server builds on disk.
//
// Builds are identified purely by their filename: papermc-server_<build>.jar.
// The store scans a single server directory for the current artifact,
// derives install paths for new builds, and commits downloaded builds with
// a write-sibling-then-rename swap so the install path never exposes a
// partially written file. The previously installed artifact survives any
// failed commit.
package artifact
