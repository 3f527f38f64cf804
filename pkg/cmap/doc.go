// Package cmap provides a concurrent-safe sharded map keyed by strings.
//
// Keys are spread over shards by their murmur3 hash, so writers to
// different keys rarely contend on the same lock.
package cmap
