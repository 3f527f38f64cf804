// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr    = "0.0.0.0:8000"
	DefaultMetricsAddr = "0.0.0.0:9000"

	DefaultGracePeriod = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		HTTP: HTTPSection{
			Address: DefaultHTTPAddr,
		},
		Metrics: MetricsSection{
			Address: DefaultMetricsAddr,
		},
		Shutdown: ShutdownSection{
			GracePeriod: DefaultGracePeriod,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
