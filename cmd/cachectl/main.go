// Command cachectl reads and writes entries of a doccache store from the
// command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentuity/go-doccache/cache"
	"github.com/agentuity/go-doccache/env"
	"github.com/agentuity/go-doccache/logger"
	"github.com/agentuity/go-doccache/telemetry"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		if isNotFound(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cachectl",
		Short:         "Inspect and edit a doccache store",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return env.LoadDotEnv(envFile)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "YAML config file (env DOCCACHE_CONFIG)")
	flags.String("env-file", ".env", "file of environment variables to load when present")
	flags.String("backend", "", "store backend: mongo, redis, sqlite or memory (env DOCCACHE_BACKEND)")
	flags.String("connection-string", "", "MongoDB URI, Redis URL or SQLite path (env DOCCACHE_CONNECTION_STRING)")
	flags.String("database", "", "MongoDB database (env DOCCACHE_DATABASE)")
	flags.String("collection", "", "collection, key prefix or table (env DOCCACHE_COLLECTION)")
	flags.String("sweep-interval", "", "minimum time between expired entry sweeps (env DOCCACHE_SWEEP_INTERVAL)")
	flags.String("query-timeout", "", "timeout for each store call (env DOCCACHE_QUERY_TIMEOUT)")
	flags.String("log-level", "", "log level: trace, debug, info, warn or error (env DOCCACHE_LOG_LEVEL)")
	flags.String("log-format", "console", "log format: console or json")
	flags.String("otlp-url", "", "OTLP/HTTP collector to export spans to (env DOCCACHE_OTLP_URL)")
	flags.String("otlp-token", "", "bearer token for the OTLP collector (env DOCCACHE_OTLP_TOKEN)")

	root.AddCommand(
		newGetCommand(),
		newSetCommand(),
		newRefreshCommand(),
		newRemoveCommand(),
		newInspectCommand(),
		newSweepCommand(),
	)
	return root
}

// loadConfig builds the cache config from the config file, then lets flags
// and environment variables override individual fields.
func loadConfig(cmd *cobra.Command) (cache.Config, error) {
	var cfg cache.Config
	if path := env.FlagOrEnv(cmd, "config", "DOCCACHE_CONFIG", ""); path != "" {
		var err error
		if cfg, err = cache.LoadConfig(path); err != nil {
			return cache.Config{}, err
		}
	}
	cfg.Backend = env.FlagOrEnv(cmd, "backend", "DOCCACHE_BACKEND", cfg.Backend)
	cfg.ConnectionString = env.FlagOrEnv(cmd, "connection-string", "DOCCACHE_CONNECTION_STRING", cfg.ConnectionString)
	cfg.DatabaseName = env.FlagOrEnv(cmd, "database", "DOCCACHE_DATABASE", cfg.DatabaseName)
	cfg.CollectionName = env.FlagOrEnv(cmd, "collection", "DOCCACHE_COLLECTION", cfg.CollectionName)
	var err error
	if cfg.ExpiredScanInterval, err = env.DurationFlagOrEnv(cmd, "sweep-interval", "DOCCACHE_SWEEP_INTERVAL", cfg.ExpiredScanInterval); err != nil {
		return cache.Config{}, err
	}
	if cfg.QueryTimeout, err = env.DurationFlagOrEnv(cmd, "query-timeout", "DOCCACHE_QUERY_TIMEOUT", cfg.QueryTimeout); err != nil {
		return cache.Config{}, err
	}
	return cfg, nil
}

// openCache opens the configured cache. The returned function closes it and
// flushes any exported spans.
func openCache(cmd *cobra.Command) (*cache.Cache, logger.Logger, func(), error) {
	log := env.NewLogger(cmd)
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, log, nil, err
	}
	opts := []cache.Option{cache.WithLogger(log)}
	shutdown := func() {}
	if otlpURL := env.FlagOrEnv(cmd, "otlp-url", "DOCCACHE_OTLP_URL", ""); otlpURL != "" {
		token := env.FlagOrEnv(cmd, "otlp-token", "DOCCACHE_OTLP_TOKEN", "")
		provider, stop, err := telemetry.New(cmd.Context(), log, otlpURL, token, "cachectl")
		if err != nil {
			return nil, log, nil, err
		}
		opts = append(opts, cache.WithTracer(provider.Tracer("github.com/agentuity/go-doccache/cmd/cachectl")))
		shutdown = stop
	}
	c, err := cache.New(cmd.Context(), cfg, opts...)
	if err != nil {
		shutdown()
		return nil, log, nil, err
	}
	return c, log, func() {
		if err := c.Close(); err != nil {
			log.Warn("error closing cache: %v", err)
		}
		shutdown()
	}, nil
}
