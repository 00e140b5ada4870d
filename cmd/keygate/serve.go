package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/dropDatabas3/keygate/internal/app"
	"github.com/dropDatabas3/keygate/internal/config"
	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// loadConfig .env (si existe) + YAML + KEYGATE_*, validado.
func loadConfig() (*config.Config, error) {
	if p := globalOpts.EnvFile; p != "" {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
	}
	cfg, err := config.Load(globalOpts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the public and admin HTTP servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger.Init(logger.Config{
			Env:         cfg.App.Env,
			Level:       cfg.Log.Level,
			ServiceName: "keygate",
			Version:     version,
		})
		defer func() { _ = logger.Sync() }()
		log := logger.L()

		if err := metrics.Register(nil); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, app.Deps{})
		if err != nil {
			log.Error("startup failed", logger.Err(err))
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				log.Warn("close failed", logger.Err(err))
			}
		}()

		log.Info("keygate starting",
			logger.Backend(a.Data.Driver()),
			logger.String("issuer", cfg.Tokens.Issuer),
		)
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load and validate the configuration without starting anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config OK (storage=%s, public=%v, admin=%v)\n",
			cfg.Storage.Driver, cfg.Server.Public.Enabled(), cfg.Server.Admin.Enabled())
		return nil
	},
}
