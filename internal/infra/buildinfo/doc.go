// Package buildinfo provides build information for servus binaries.
//
// This package exposes build-time information injected via ldflags:
//
//   - Version: Semantic version (e.g., "1.0.0")
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// Values not injected fall back to what the Go toolchain embedded in the
// binary (module version, vcs.revision, vcs.time).
//
// Usage:
//
//	go build -ldflags "-X github.com/yndnr/servus-go/internal/infra/buildinfo.Version=v1.0.0"
package buildinfo
