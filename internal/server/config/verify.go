// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/yndnr/servus-go/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyListeners(cfg); err != nil {
		return err
	}
	if cfg.Shutdown.GracePeriod <= 0 {
		return errors.New("shutdown.grace_period must be positive")
	}
	if err := verifyLog(&cfg.Log); err != nil {
		return err
	}
	return nil
}

func verifyListeners(cfg *ServerConfig) error {
	if cfg.HTTP.Address == "" {
		return errors.New("http.address is required")
	}
	if err := VerifyAddress(cfg.HTTP.Address); err != nil {
		return fmt.Errorf("http.address: %w", err)
	}
	if cfg.HTTP.RateLimit < 0 {
		return errors.New("http.rate_limit must not be negative")
	}
	if cfg.HTTP.RateBurst < 0 {
		return errors.New("http.rate_burst must not be negative")
	}

	if cfg.Metrics.Address == "" {
		return nil
	}
	if err := VerifyAddress(cfg.Metrics.Address); err != nil {
		return fmt.Errorf("metrics.address: %w", err)
	}

	// Port 0 lets the kernel pick, so two such addresses never conflict.
	if cfg.Metrics.Address == cfg.HTTP.Address && !strings.HasSuffix(cfg.HTTP.Address, ":0") {
		return fmt.Errorf("metrics.address must differ from http.address (%s)", cfg.HTTP.Address)
	}
	return nil
}

// VerifyAddress checks that addr is a host:port pair with a numeric port.
// The host may be empty to listen on every interface.
func VerifyAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.ContainsAny(host, " \t") {
		return fmt.Errorf("invalid host %q", host)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !logger.ValidLevel(cfg.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "text", "console", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", cfg.Format)
	}
	return nil
}
