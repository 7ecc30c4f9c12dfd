package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/seantiz/crucible/internal/api"
	"github.com/seantiz/crucible/internal/config"
	"github.com/seantiz/crucible/internal/engine"
	"github.com/seantiz/crucible/internal/executor"
	"github.com/seantiz/crucible/internal/registry"
	"github.com/seantiz/crucible/internal/result"
)

var version = "dev"

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "crucible",
		Short:        "Task orchestration and result caching engine",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.NewLogger(os.Stdout, cfg.LogLevel)

			logger.Info("crucible: starting",
				"listen_addr", cfg.ListenAddr,
				"store_backend", cfg.StoreBackend,
				"executor", cfg.Executor,
			)

			store, err := openStore(cfg)
			if err != nil {
				return fmt.Errorf("open result store: %w", err)
			}
			defer store.Close()

			execs := executor.NewRegistry()
			execs.Register(executor.NameSerial, executor.NewSerial())
			execs.Register(executor.NamePool, executor.NewPool(cfg.MaxWorkers))

			eng := engine.NewEngine(store, registry.New(), execs, logger, engine.Config{
				RefreshCacheDefault: cfg.RefreshCache,
				DefaultTimeout:      cfg.DefaultTimeout,
				DefaultExecutor:     cfg.Executor,
			})

			srv := api.NewServer(cfg.ListenAddr, eng, execs, logger)
			return srv.Run()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func openStore(cfg config.Config) (result.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		return result.NewSQLiteStore(cfg.DBPath)
	case config.BackendFS:
		return result.NewFSStore(cfg.CacheDir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
