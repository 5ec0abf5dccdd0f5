// Package download fetches build artifacts over HTTP.
//
// Artifacts are streamed chunk by chunk into a temporary file that is
// only handed to the caller once the whole body arrived; every failure
// mode removes the temporary file first. Committing the file to its
// final name is the artifact store's job, keeping "bytes on disk" and
// "build installed" as separate steps.
package download
