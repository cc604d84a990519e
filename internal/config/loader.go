package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
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

func loadYAML(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
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
	setString(&cfg.RunsDir, "TEST_RUNS_DIR")
	setList(&cfg.Suites, "TESTRUN_SUITES")
	setString(&cfg.DefaultBaseURL, "TESTRUN_DEFAULT_BASE_URL")
	setInt(&cfg.LogTailLines, "TESTRUN_LOG_TAIL_LINES")
	setDuration(&cfg.LockTTL, "TESTRUN_LOCK_TTL")
	setString(&cfg.Runner.Workdir, "TESTRUN_RUNNER_WORKDIR")

	// A redis URL in the environment selects the redis backend unless a
	// backend is named explicitly.
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Lock.RedisURL = v
		cfg.Lock.Backend = LockBackendRedis
	}
	setString(&cfg.Lock.Backend, "TESTRUN_LOCK_BACKEND")
	setString(&cfg.Lock.Key, "TESTRUN_LOCK_KEY")

	setString(&cfg.Server.Addr, "TESTRUN_ADDR")
	setString(&cfg.Server.CORSOrigin, "TESTRUN_CORS_ORIGIN")
	setString(&cfg.Server.BasicAuthUser, "BASIC_AUTH_USER")
	setString(&cfg.Server.BasicAuthPass, "BASIC_AUTH_PASS")
	setBool(&cfg.Server.Inline, "TESTRUN_INLINE")

	setString(&cfg.Logging.Level, "TESTRUN_LOG_LEVEL")
	setString(&cfg.Logging.File, "TESTRUN_LOG_FILE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if len(cfg.Suites) == 0 {
		return errors.New("suites must not be empty")
	}
	if cfg.LogTailLines < 1 {
		return errors.New("log_tail_lines must be >= 1")
	}
	if cfg.LockTTL <= 0 {
		return errors.New("lock_ttl must be positive")
	}
	if len(cfg.Runner.Command) == 0 {
		return errors.New("runner.command is required")
	}
	switch cfg.Lock.Backend {
	case LockBackendSQLite:
	case LockBackendRedis:
		if cfg.Lock.RedisURL == "" {
			return errors.New("lock.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown lock.backend %q", cfg.Lock.Backend)
	}
	if cfg.Lock.Key == "" {
		return errors.New("lock.key is required")
	}
	if (cfg.Server.BasicAuthUser == "") != (cfg.Server.BasicAuthPass == "") {
		return errors.New("server.basic_auth_user and server.basic_auth_pass must be set together")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
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
