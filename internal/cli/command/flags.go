package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/servus-go/internal/server/config"
)

// Flag names shared by every servus binary.
const (
	FlagHTTPAddress    = "servus-http-address"
	FlagMetricsAddress = "servus-metrics-address"
	FlagLogJSON        = "servus-log-json"
	FlagLogLevel       = "servus-log-level"
	FlagDatabaseURL    = "servus-database-url"
	FlagGracePeriod    = "servus-grace-period"
	FlagRateLimit      = "servus-rate-limit"
	FlagConfig         = "servus-config"
)

// Flags returns the servus flags.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    FlagHTTPAddress,
			Usage:   "application listen address",
			EnvVars: []string{"SERVUS_HTTP_ADDRESS"},
			Value:   config.DefaultHTTPAddr,
		},
		&cli.StringFlag{
			Name:    FlagMetricsAddress,
			Usage:   "metrics and health listen address, empty to disable",
			EnvVars: []string{"SERVUS_METRICS_ADDRESS"},
			Value:   config.DefaultMetricsAddr,
		},
		&cli.BoolFlag{
			Name:    FlagLogJSON,
			Usage:   "log in JSON instead of text",
			EnvVars: []string{"SERVUS_LOG_JSON"},
		},
		&cli.StringFlag{
			Name:    FlagLogLevel,
			Usage:   "log level: debug, info, warn, error",
			EnvVars: []string{"SERVUS_LOG_LEVEL"},
			Value:   config.DefaultLogLevel,
		},
		&cli.StringFlag{
			Name:    FlagDatabaseURL,
			Usage:   "database url, for example badger:///var/lib/servus or memory:",
			EnvVars: []string{"SERVUS_DATABASE_URL"},
		},
		&cli.DurationFlag{
			Name:    FlagGracePeriod,
			Usage:   "how long in-flight requests may drain on shutdown",
			EnvVars: []string{"SERVUS_SHUTDOWN_GRACE_PERIOD"},
			Value:   config.DefaultGracePeriod,
		},
		&cli.Float64Flag{
			Name:    FlagRateLimit,
			Usage:   "requests per second per client, 0 to disable",
			EnvVars: []string{"SERVUS_HTTP_RATE_LIMIT"},
		},
		&cli.StringFlag{
			Name:    FlagConfig,
			Usage:   "path to a YAML config file, reloaded on change",
			EnvVars: []string{"SERVUS_CONFIG"},
		},
	}
}

// Overrides returns the config keys for every flag that was set on the
// command line or through its environment variable.
func Overrides(c *cli.Context) map[string]any {
	values := make(map[string]any)

	if c.IsSet(FlagHTTPAddress) {
		values["http.address"] = c.String(FlagHTTPAddress)
	}
	if c.IsSet(FlagMetricsAddress) {
		values["metrics.address"] = c.String(FlagMetricsAddress)
	}
	if c.IsSet(FlagLogJSON) {
		if c.Bool(FlagLogJSON) {
			values["log.format"] = "json"
		} else {
			values["log.format"] = "text"
		}
	}
	if c.IsSet(FlagLogLevel) {
		values["log.level"] = c.String(FlagLogLevel)
	}
	if c.IsSet(FlagDatabaseURL) {
		values["database.url"] = c.String(FlagDatabaseURL)
	}
	if c.IsSet(FlagGracePeriod) {
		values["shutdown.grace_period"] = c.Duration(FlagGracePeriod).String()
	}
	if c.IsSet(FlagRateLimit) {
		values["http.rate_limit"] = c.Float64(FlagRateLimit)
	}

	return values
}
