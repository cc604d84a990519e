// Package config loads testrun settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"slices"
	"time"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "testrun.yaml"

// DefaultDashboardURL is passed to the test executable when a run has no base URL.
const DefaultDashboardURL = "https://adviseuracceptatie.private-insurance.eu/#/dashboard"

// Lock backends.
const (
	LockBackendSQLite = "sqlite"
	LockBackendRedis  = "redis"
)

// Config is the full testrun configuration.
type Config struct {
	RunsDir        string        `yaml:"runs_dir"`
	Suites         []string      `yaml:"suites"`
	DefaultBaseURL string        `yaml:"default_base_url"`
	LogTailLines   int           `yaml:"log_tail_lines"`
	LockTTL        time.Duration `yaml:"lock_ttl"`

	Runner  RunnerConfig  `yaml:"runner"`
	Lock    LockConfig    `yaml:"lock"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// RunnerConfig describes the external test executable.
//
// Command elements may reference ${TOOLBOX_RUN_ID}, ${TOOLBOX_RUN_DIR},
// ${TOOLBOX_TEST_SUITE}, ${TOOLBOX_TEST_BASE_URL}, ${TOOLBOX_JUNIT_PATH} and
// ${TOOLBOX_HTML_PATH}; they are expanded per run.
type RunnerConfig struct {
	Command []string `yaml:"command"`
	Workdir string   `yaml:"workdir"`
}

// LockConfig selects the active-run lock backend.
type LockConfig struct {
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
	Key      string `yaml:"key"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	CORSOrigin    string `yaml:"cors_origin"`
	BasicAuthUser string `yaml:"basic_auth_user"`
	BasicAuthPass string `yaml:"basic_auth_pass"`
	Inline        bool   `yaml:"inline"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Suites:         []string{"avp_scenario", "smoke"},
		DefaultBaseURL: DefaultDashboardURL,
		LogTailLines:   300,
		LockTTL:        6 * time.Hour,
		Runner: RunnerConfig{
			Command: []string{
				"python", "-m", "pytest",
				"test_runner/tests/test_avp_scenario.py",
				"-m", "${TOOLBOX_TEST_SUITE}",
				"-s",
				"--maxfail=1",
				"--disable-warnings",
				"--html=${TOOLBOX_HTML_PATH}",
				"--self-contained-html",
				"--junitxml=${TOOLBOX_JUNIT_PATH}",
			},
		},
		Lock: LockConfig{
			Backend: LockBackendSQLite,
			Key:     "toolbox:test-runs:active",
		},
		Server: ServerConfig{
			Addr:       ":8080",
			CORSOrigin: "*",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SupportsSuite reports whether suite is in the configured set.
func (c *Config) SupportsSuite(suite string) bool {
	return slices.Contains(c.Suites, suite)
}

// SortedSuites returns the configured suites in lexical order.
func (c *Config) SortedSuites() []string {
	suites := slices.Clone(c.Suites)
	slices.Sort(suites)
	return suites
}
