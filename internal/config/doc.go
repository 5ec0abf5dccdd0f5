// Package config defines the supervisor settings and provides helpers to
// load, validate and save them in YAML format.
//
// The Config type covers the build registry endpoint, the tracked project
// and game version, and the launch parameters of the server process. Every
// field has a documented default, so an empty file is a valid configuration.
package config
