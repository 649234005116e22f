// Command campustrace runs the CampusTrace lost-and-found backend.
//
//	campustrace serve               # HTTP API and background matcher
//	campustrace migrate             # create or update the schema, seed badges
//	campustrace seed-badges         # insert missing badge catalog rows
//	campustrace rescan <item-id>    # run proactive matching for one found item
//
// Configuration comes from the environment; a .env file in the working
// directory is loaded first when present.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-campustrace-backend/internal/app"
	"github.com/tbourn/go-campustrace-backend/internal/config"
	"github.com/tbourn/go-campustrace-backend/internal/notify"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
	"github.com/tbourn/go-campustrace-backend/internal/services"
	"github.com/tbourn/go-campustrace-backend/internal/sysutil"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	cfg config.Config
	log zerolog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "campustrace",
		Short:         "Campus lost-and-found backend with matching, claims and verified handover",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Missing .env is fine; the environment may already be set.
			_ = godotenv.Load(envFile)
			var err error
			if cfg, err = config.Load(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log = sysutil.NewLogger(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(serveCmd(), migrateCmd(), seedBadgesCmd(), rescanCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the proactive matcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log, Version)
			if err != nil {
				return err
			}
			log.Info().
				Str("version", Version).
				Str("db_driver", cfg.DB.Driver).
				Bool("embeddings", cfg.Embedding.Enabled()).
				Bool("push", cfg.Push.Enabled).
				Msg("campustrace starting")
			return a.Run(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and seed the badge catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := app.OpenDB(cmd.Context(), cfg); err != nil {
				return err
			}
			log.Info().Str("db_driver", cfg.DB.Driver).Msg("migration complete")
			return nil
		},
	}
}

func seedBadgesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-badges",
		Short: "Insert missing badge catalog entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := app.OpenDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := repo.SeedBadges(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d badges in catalog\n", len(repo.BadgeCatalog))
			return nil
		},
	}
}

func rescanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescan <found-item-id>",
		Short: "Run proactive matching for one found item and notify matching owners",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := app.OpenDB(ctx, cfg)
			if err != nil {
				return err
			}
			var push notify.PushSender
			if cfg.Push.Enabled {
				push = notify.NewExpoSender(cfg.Push.Endpoint, cfg.Push.Timeout)
			}
			m := services.NewProactiveMatcher(db, notify.NewDispatcher(db, push, log), log, services.ProactiveConfig{
				Threshold:  cfg.Proactive.Threshold,
				MaxRetries: uint(cfg.Proactive.MaxRetries),
			})
			n, err := m.ScanNow(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "notified %d owner(s)\n", n)
			return nil
		},
	}
}
