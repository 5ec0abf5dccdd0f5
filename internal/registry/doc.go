// Package registry implements a read-only client for build registries
// speaking the PaperMC v2 API.
//
// The client answers three questions: which game versions a project has
// builds for, which build number is the newest for a version, and where
// the artifact of a given build can be downloaded from. A configured
// version of "latest" is resolved to the newest released version once
// and cached for the lifetime of the client.
//
// Errors are classified into ErrUnavailable (the registry cannot be
// reached or refuses the request) and ErrMalformed (the response cannot
// be interpreted), so callers can decide whether retrying makes sense.
package registry
