// Package command provides the shared command-line surface of the servus
// binaries.
//
// Every binary accepts the same flattened set of flags, each backed by a
// SERVUS_* environment variable. Flags the user sets explicitly override
// the config file and the environment; the rest fall through to them.
package command
