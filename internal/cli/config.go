package cli

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/BenjaminSRussell/go_gopher/internal/config"
	"github.com/BenjaminSRussell/go_gopher/internal/logging"
	"github.com/BenjaminSRussell/go_gopher/internal/types"
	"github.com/sirupsen/logrus"
)

// resolveConfig layers defaults, the YAML file, the environment and the
// global log flags. Command flags are applied by the caller.
func resolveConfig(opts *globalOptions) (types.Config, error) {
	cfg := config.Default()

	if opts.configFile != "" {
		var err error
		cfg, err = config.LoadFile(opts.configFile, cfg)
		if err != nil {
			return types.Config{}, err
		}
	}

	if opts.envFile != "" {
		if err := config.LoadEnvFile(opts.envFile); err != nil {
			return types.Config{}, err
		}
	} else {
		config.LoadEnv(nil)
	}
	cfg = config.ApplyEnv(cfg)

	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}

	return cfg, nil
}

func newLogger(cfg types.Config) *logrus.Logger {
	return logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

// requireFile fails with a readable message when a path flag is empty
func requireFile(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

// splitHostPort accepts host, host:port, [v6]:port and gopher:// URLs
func splitHostPort(target string) (string, string, error) {
	if target == "" {
		return "", "", fmt.Errorf("empty target")
	}

	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", "", fmt.Errorf("invalid target %q: %w", target, err)
		}
		if u.Scheme != "gopher" && u.Scheme != "gophers" {
			return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		return u.Hostname(), u.Port(), nil
	}

	if host, port, err := net.SplitHostPort(target); err == nil {
		return host, port, nil
	}
	return strings.Trim(target, "[]"), "", nil
}
