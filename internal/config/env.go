package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BenjaminSRussell/go_gopher/internal/types"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadEnv loads variables from a local .env file without overriding the
// process environment
func LoadEnv(logger *logrus.Logger, files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		if logger != nil {
			logger.Debugf("Loaded env file %s", file)
		}
	}
}

// LoadEnvFile loads a dotenv file the user asked for by name. Unlike
// LoadEnv a missing or malformed file is an error.
func LoadEnvFile(file string) error {
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", file, err)
	}
	return nil
}

// ApplyEnv overlays GOPHER_* environment variables onto cfg
func ApplyEnv(cfg types.Config) types.Config {
	cfg.Host = GetEnv("GOPHER_HOST", cfg.Host)
	cfg.Port = GetEnvInt("GOPHER_PORT", cfg.Port)
	cfg.ConnectTimeout = GetEnvDuration("GOPHER_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	cfg.ReadTimeout = GetEnvDuration("GOPHER_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.FetchDeadline = GetEnvDuration("GOPHER_FETCH_DEADLINE", cfg.FetchDeadline)
	cfg.OutputDir = GetEnv("GOPHER_OUTPUT_DIR", cfg.OutputDir)
	cfg.MaxFilenameLength = GetEnvInt("GOPHER_MAX_FILENAME_LENGTH", cfg.MaxFilenameLength)
	cfg.Workers = GetEnvInt("GOPHER_WORKERS", cfg.Workers)
	cfg.RequestsPerSecond = GetEnvFloat("GOPHER_RPS", cfg.RequestsPerSecond)
	cfg.RespectRobots = GetEnvBool("GOPHER_RESPECT_ROBOTS", cfg.RespectRobots)
	cfg.UserAgent = GetEnv("GOPHER_USER_AGENT", cfg.UserAgent)
	cfg.TLS = GetEnvBool("GOPHER_TLS", cfg.TLS)
	cfg.SOCKSProxy = GetEnv("GOPHER_SOCKS_PROXY", cfg.SOCKSProxy)
	cfg.IndexDB = GetEnv("GOPHER_INDEX_DB", cfg.IndexDB)
	cfg.MetricsAddr = GetEnv("GOPHER_METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = GetEnv("LOG_FORMAT", cfg.LogFormat)
	return cfg
}

// GetEnv gets an environment variable with a default value
func GetEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt gets an integer environment variable with a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvFloat gets a float environment variable with a default value
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvBool gets a boolean environment variable with a default value
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvDuration gets a duration environment variable such as "5s"
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
