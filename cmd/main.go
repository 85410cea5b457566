package main

import (
	"fmt"
	"os"

	"deposit-governance/internal/config"
	"deposit-governance/internal/database"
	"deposit-governance/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "govd",
		Short: "Deposit-gated, token-weighted proposal governance",
		Long: `govd runs the proposal governance service: whitelisted members submit
proposals, fund them during the deposit window, vote with their token balance
during the voting window, and the admin finalizes the outcome.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "main", Title: "Main Commands"},
		&cobra.Group{ID: "management", Title: "Management Commands"},
	)

	serve := newServeCmd()
	serve.GroupID = "main"

	management := []*cobra.Command{
		newMigrateCmd(),
		newSeedCmd(),
		newTokenCmd(),
		newProposalsCmd(),
	}
	for _, cmd := range management {
		cmd.GroupID = "management"
	}

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(management...)
	return rootCmd
}

// bootstrap loads configuration, sets up logging and opens the database
func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.SetupLogger(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	db, err := database.Connect(cfg.Database.Driver, cfg.GetDSN(), logging.GormLogLevel(cfg.Log.Level))
	if err != nil {
		return nil, nil, err
	}

	log.Debug().
		Str("driver", cfg.Database.Driver).
		Str("ledger", cfg.Ledger.Backend).
		Msg("Configuration loaded")

	return cfg, db, nil
}
