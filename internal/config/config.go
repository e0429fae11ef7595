package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BenjaminSRussell/go_gopher/internal/gopher"
	"github.com/BenjaminSRussell/go_gopher/internal/types"
	"gopkg.in/yaml.v3"
)

// Defaults used when neither file, environment nor flags set a value
const (
	DefaultConnectTimeout    = 5 * time.Second
	DefaultReadTimeout       = 5 * time.Second
	DefaultFetchDeadline     = 20 * time.Second
	DefaultOutputDir         = "./data"
	DefaultMaxFilenameLength = 64
	DefaultUserAgent         = "gophercrawl"
	MaxWorkers               = 64
)

// Default returns the built-in configuration
func Default() types.Config {
	return types.Config{
		Port:              gopher.DefaultPort,
		ConnectTimeout:    DefaultConnectTimeout,
		ReadTimeout:       DefaultReadTimeout,
		FetchDeadline:     DefaultFetchDeadline,
		OutputDir:         DefaultOutputDir,
		MaxFilenameLength: DefaultMaxFilenameLength,
		Workers:           1,
		UserAgent:         DefaultUserAgent,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// LoadFile overlays a YAML file onto cfg. Keys absent from the file keep
// their current values; durations are written as strings like "5s".
func LoadFile(path string, cfg types.Config) (types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks a configuration before a crawl starts
func Validate(cfg types.Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("host is required")
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}

	if cfg.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got %v", cfg.ConnectTimeout)
	}

	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %v", cfg.ReadTimeout)
	}

	if cfg.FetchDeadline < cfg.ReadTimeout {
		return fmt.Errorf("fetch deadline (%v) must not be shorter than read timeout (%v)", cfg.FetchDeadline, cfg.ReadTimeout)
	}

	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}

	if cfg.Workers > MaxWorkers {
		return fmt.Errorf("workers too high (max %d), got %d", MaxWorkers, cfg.Workers)
	}

	if cfg.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative, got %v", cfg.RequestsPerSecond)
	}

	if cfg.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}

	if cfg.MaxFilenameLength < 8 {
		return fmt.Errorf("max filename length too small (min 8), got %d", cfg.MaxFilenameLength)
	}

	if cfg.RespectRobots && cfg.UserAgent == "" {
		return fmt.Errorf("user agent is required when respecting robots.txt")
	}

	return nil
}
