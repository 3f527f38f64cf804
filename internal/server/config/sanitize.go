// Package config defines the server configuration structure.
package config

import "github.com/yndnr/servus-go/internal/telemetry/logger"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	// Create a shallow copy
	sanitized := *cfg

	if sanitized.Database.URL != "" {
		sanitized.Database.URL = logger.RedactString(sanitized.Database.URL)
	}

	return &sanitized
}
