// Package logger provides structured logging for servus.
//
// This package wraps log/slog for structured logging:
//
//   - logger.go: logger construction, levels, package-level helpers
//   - context.go: context-aware logging with request IDs
//   - redact.go: sensitive data redaction
//
// Features:
//
//   - JSON and text output formats (--servus-log-json selects JSON)
//   - Log level filtering with runtime adjustment
//   - Automatic masking of secrets and URL credentials
//   - Context propagation for request correlation
package logger
