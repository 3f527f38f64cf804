package command

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/servus-go/internal/infra/buildinfo"
	"github.com/yndnr/servus-go/internal/infra/confloader"
	"github.com/yndnr/servus-go/internal/server/config"
	"github.com/yndnr/servus-go/internal/server/httpserver"
	"github.com/yndnr/servus-go/internal/telemetry/logger"
)

// LoadConfig builds the configuration from defaults, the config file, the
// environment and the flags, in increasing priority, and verifies it.
func LoadConfig(c *cli.Context) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{confloader.WithOverrides(Overrides(c))}
	if path := c.String(FlagConfig); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Runtime is what a binary needs after setup.
type Runtime struct {
	Config *config.ServerConfig
	Logger logger.Logger

	watcher *confloader.Watcher
}

// Setup loads the configuration, installs the default logger and, when a
// config file is given, starts watching it for log level changes.
func Setup(c *cli.Context) (*Runtime, error) {
	cfg, err := LoadConfig(c)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stderr
	if c.App != nil && c.App.ErrWriter != nil {
		out = c.App.ErrWriter
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	rt := &Runtime{Config: cfg, Logger: log}

	if path := c.String(FlagConfig); path != "" {
		if err := rt.watch(c, path); err != nil {
			return nil, err
		}
	}

	// Listener addresses are logged by the host once bound.
	log.Info("configuration loaded",
		"version", buildinfo.Get().Version,
		"database_url", config.Sanitize(cfg).Database.URL,
	)
	return rt, nil
}

func (r *Runtime) watch(c *cli.Context, path string) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(r.Slog()))
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	w.OnChange(func(string) {
		cfg, err := LoadConfig(c)
		if err != nil {
			r.Logger.Warn("config reload failed, keeping current settings", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			r.Logger.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	w.StartAsync()

	r.watcher = w
	return nil
}

// Slog returns the runtime logger as a *slog.Logger.
func (r *Runtime) Slog() *slog.Logger {
	return logger.Slog(r.Logger)
}

// Addresses returns the listen addresses of the host.
func (r *Runtime) Addresses() httpserver.Addresses {
	return httpserver.Addresses{
		HTTP:    r.Config.HTTP.Address,
		Metrics: r.Config.Metrics.Address,
	}
}

// HostOptions returns the host options derived from the configuration.
func (r *Runtime) HostOptions() []httpserver.HostOption {
	opts := []httpserver.HostOption{
		httpserver.WithLogger(r.Slog()),
		httpserver.WithGracePeriod(r.Config.Shutdown.GracePeriod),
	}
	if r.Config.HTTP.RateLimit > 0 {
		opts = append(opts, httpserver.WithRateLimit(r.Config.HTTP.RateLimit, r.Config.HTTP.RateBurst))
	}
	return opts
}

// Close stops the config watcher.
func (r *Runtime) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Stop()
}
