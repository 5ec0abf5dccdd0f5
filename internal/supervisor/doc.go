// Package supervisor drives the update-and-run cycle of the game server.
//
// Each cycle scans the server directory for the installed build, asks the
// build registry for the latest one, downloads and commits it when newer,
// launches the server process, blocks until it exits, and asks the operator
// whether to restart or stop. Every update failure degrades to running the
// build already on disk; the loop only ends on an operator stop, a canceled
// context, or the dead end of having no artifact at all to launch.
//
// Collaborators enter through small capability interfaces (BuildRegistry,
// Store, Fetcher, Runner, Prompter), so tests can drive the loop with fakes
// instead of a live registry, filesystem or console.
package supervisor
