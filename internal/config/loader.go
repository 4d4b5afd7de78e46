package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ride.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RIDE_PORT")
	setString(&cfg.Server.CORSOrigin, "RIDE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RIDE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RIDE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RIDE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RIDE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RIDE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "RIDE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RIDE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RIDE_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "RIDE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "RIDE_BREAKER_TIMEOUT")
	setBool(&cfg.Telemetry.Enabled, "RIDE_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "RIDE_OTEL_ENDPOINT")
	setString(&cfg.Storage.Driver, "RIDE_STORAGE_DRIVER")
	setInt64(&cfg.Storage.CacheSizeMB, "RIDE_STORAGE_CACHE_MB")
	setString(&cfg.Bus.Driver, "RIDE_BUS_DRIVER")
	setInt(&cfg.Orchestrator.MaxParallel, "RIDE_ORCH_MAX_PARALLEL")
	setDuration(&cfg.Orchestrator.StepTimeout, "RIDE_ORCH_STEP_TIMEOUT")
	setDuration(&cfg.Orchestrator.RequestTimeout, "RIDE_ORCH_REQUEST_TIMEOUT")
	setDuration(&cfg.Orchestrator.RetentionAge, "RIDE_ORCH_RETENTION_AGE")
	setDuration(&cfg.Orchestrator.CleanupInterval, "RIDE_ORCH_CLEANUP_INTERVAL")
	setString(&cfg.Orchestrator.AgentName, "RIDE_ORCH_AGENT_NAME")
}

// validate rejects configurations that cannot be run.
func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("storage driver %q: must be memory or postgres", cfg.Storage.Driver)
	}
	switch cfg.Bus.Driver {
	case "inproc", "nats":
	default:
		return fmt.Errorf("bus driver %q: must be inproc or nats", cfg.Bus.Driver)
	}
	if cfg.Orchestrator.MaxParallel < 1 {
		return fmt.Errorf("orchestrator max_parallel must be >= 1, got %d", cfg.Orchestrator.MaxParallel)
	}
	if cfg.Orchestrator.RequestTimeout <= 0 {
		return fmt.Errorf("orchestrator request_timeout must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
