// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration shared by every servus binary.
type ServerConfig struct {
	HTTP     HTTPSection     `koanf:"http"`
	Metrics  MetricsSection  `koanf:"metrics"`
	Shutdown ShutdownSection `koanf:"shutdown"`
	Log      LogSection      `koanf:"log"`
	Database DatabaseSection `koanf:"database"`
}

// HTTPSection configures the application listener.
type HTTPSection struct {
	Address string `koanf:"address"`

	// RateLimit is the sustained requests per second admitted by the
	// application listener. Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the token bucket size. Zero means ceil(RateLimit).
	RateBurst int `koanf:"rate_burst"`
}

// MetricsSection configures the auxiliary metrics and health listener.
type MetricsSection struct {
	// Address is empty when no auxiliary listener should be started.
	Address string `koanf:"address"`
}

// ShutdownSection configures graceful shutdown.
type ShutdownSection struct {
	// GracePeriod bounds how long in-flight requests may take to drain.
	GracePeriod time.Duration `koanf:"grace_period"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DatabaseSection configures the optional application database.
type DatabaseSection struct {
	URL string `koanf:"url"`
}
