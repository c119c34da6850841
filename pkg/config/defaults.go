// Package config loads lispc's project configuration: VM and macro-expander
// limits, the bytecode cache directory, and log level/format.
//
// A YAML file provides the base; individual settings are then overridden
// by environment variables, and finally by CLI flags (applied by
// cmd/lispc after Load returns).
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPort is where `lispc serve-metrics` (pkg/metrics) binds by
// default; lispc itself is not a network server.
const DefaultPort = 3000

// Config holds every lispc-wide tunable. Zero value is invalid; use Default()
// or Load().
type Config struct {
	// MaxStackDepth bounds VM call recursion (pkg/vm's MaxCallDepth).
	MaxStackDepth int `yaml:"max_stack_depth"`
	// MaxMacroExpansionDepth bounds defmacro expansion recursion
	// (pkg/compiler's maxMacroExpansionDepth).
	MaxMacroExpansionDepth int `yaml:"max_macro_expansion_depth"`
	// BytecodeCacheDir is loaded from the file and environment but is not
	// read by any command; nothing is written to it.
	BytecodeCacheDir string `yaml:"bytecode_cache_dir"`
	// CacheBackend is "fs" or "redis". Only "redis" has an effect: with
	// --cache, cmd/lispc then installs pkg/native's CompileCache natives.
	CacheBackend string `yaml:"cache_backend"`
	// RedisAddr is the address of the Redis instance backing the compile
	// cache when CacheBackend is "redis".
	RedisAddr string `yaml:"redis_addr"`
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`
	// MetricsPort is the port `lispc serve-metrics` listens on.
	MetricsPort int `yaml:"metrics_port"`
}

// Default returns lispc's built-in defaults, matching pkg/vm and
// pkg/compiler's own unconfigured limits.
func Default() *Config {
	return &Config{
		MaxStackDepth:          10000,
		MaxMacroExpansionDepth: 500,
		BytecodeCacheDir:       ".lispc/cache",
		CacheBackend:           "fs",
		RedisAddr:              "localhost:6379",
		LogLevel:               "info",
		LogFormat:              "text",
		MetricsPort:            DefaultPort,
	}
}

// Load reads a `lispc.yaml` file at path (if it exists — a missing file is
// not an error, Default()'s values are used instead), then applies
// LISPC_*-prefixed environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LISPC_MAX_STACK_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxStackDepth = n
		}
	}
	if v := os.Getenv("LISPC_MAX_MACRO_EXPANSION_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxMacroExpansionDepth = n
		}
	}
	if v := os.Getenv("LISPC_BYTECODE_CACHE_DIR"); v != "" {
		cfg.BytecodeCacheDir = v
	}
	if v := os.Getenv("LISPC_CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = v
	}
	if v := os.Getenv("LISPC_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("LISPC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LISPC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("LISPC_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = n
		}
	}
}

// ParseLogLevel maps cfg's textual LogLevel to pkg/logging's LogLevel
// integer values without importing pkg/logging here, so pkg/logging stays
// free to import pkg/config in the future without a cycle.
func ParseLogLevel(s string) int {
	switch s {
	case "debug":
		return 0
	case "warn":
		return 2
	case "error":
		return 3
	default:
		return 1 // info
	}
}
