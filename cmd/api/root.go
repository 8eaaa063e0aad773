package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/audit"
	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/config"
	"callcenter-platform/pkg/logger"
)

func rootCmd() *cobra.Command {
	var cfg config.Config

	root := &cobra.Command{
		Use:           "callcenter-api",
		Short:         "call recording ingestion, analysis and live presence",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load()
			if err != nil {
				slog.Error("config load failed", "err", err)
				return err
			}
			cfg = c
			log := logger.New(cfg.App.Env)
			slog.SetDefault(log)
			cmd.SetContext(logger.With(cmd.Context(), log))
			return nil
		},
	}
	root.AddCommand(serveCmd(&cfg), migrateCmd(&cfg))
	return root
}

func serveCmd(cfg *config.Config) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the http api and the analysis workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before serving")
	return cmd
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, closeDB, err := openDB(ctx, *cfg)
			if err != nil {
				return err
			}
			defer closeDB()
			return migrateAll(ctx, db)
		},
	}
}

func migrateAll(ctx context.Context, db *gorm.DB) error {
	log := logger.From(ctx)
	steps := []struct {
		name string
		fn   func(context.Context, *gorm.DB) error
	}{
		{"calls", calls.Migrate},
		{"agents", agents.Migrate},
		{"audit", audit.Migrate},
	}
	for _, s := range steps {
		if err := s.fn(ctx, db); err != nil {
			log.Error("migration failed", "step", s.name, "err", err)
			return err
		}
		log.Info("migration applied", "step", s.name)
	}
	return nil
}
