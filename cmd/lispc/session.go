package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lispc/lispc/pkg/compiler"
	"github.com/lispc/lispc/pkg/config"
	"github.com/lispc/lispc/pkg/logging"
	"github.com/lispc/lispc/pkg/native"
	"github.com/lispc/lispc/pkg/vm"
)

var loggingInitialized bool

// loadConfig reads the project config named by --config, applying
// cmd/lispc's limit overrides to pkg/vm and pkg/compiler and initializing
// the default logger at the configured level/format.
func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		fatalf("loading config %s: %v", path, err)
	}
	vm.SetMaxCallDepth(cfg.MaxStackDepth)
	compiler.SetMaxMacroExpansionDepth(cfg.MaxMacroExpansionDepth)

	if !loggingInitialized {
		format := logging.TextFormat
		if cfg.LogFormat == "json" {
			format = logging.JSONFormat
		}
		_ = logging.InitDefaultLogger(logging.LoggerConfig{
			MinLevel: logging.LogLevel(config.ParseLogLevel(cfg.LogLevel)),
			Format:   format,
			Output:   os.Stderr,
		})
		loggingInitialized = true
	}
	return cfg
}

// newSession builds a compiler.Session with the bootstrap native registry
// installed, and (when requested) the Redis-backed compile cache and/or
// SQLite-backed global persistence natives wired in too.
func newSession(cfg *config.Config, withCache bool, dbPath string) (*compiler.Session, func(), error) {
	session := compiler.NewSession()
	native.Register(session.VM())

	var closers []func() error

	if withCache && cfg.CacheBackend == "redis" {
		cache := native.NewCompileCache(cfg.RedisAddr, 24*time.Hour)
		cache.Register(session.VM())
		closers = append(closers, cache.Close)
	}

	if dbPath != "" {
		store, err := native.OpenGlobalStore(dbPath)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, err
		}
		store.Register(session.VM())
		closers = append(closers, store.Close)
	}

	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}
	return session, cleanup, nil
}
