package main

import (
	"fmt"
	"time"

	"deposit-governance/internal/access"
	"deposit-governance/internal/auth"
	"deposit-governance/internal/config"
	"deposit-governance/internal/database"
	"deposit-governance/internal/genesis"
	"deposit-governance/internal/governance"
	"deposit-governance/internal/ledger"
	"deposit-governance/internal/logging"
	"deposit-governance/internal/repository"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var sqlFiles []string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Run the model migrations, then apply hand-written SQL files in order.
SQL files are only supported on postgres.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}

			if err := database.AutoMigrate(db); err != nil {
				return err
			}

			if len(sqlFiles) > 0 && cfg.Database.Driver != config.DriverPostgres {
				return fmt.Errorf("--sql requires DB_DRIVER=postgres, got %s", cfg.Database.Driver)
			}
			for _, path := range sqlFiles {
				if err := database.ApplySQLFile(cmd.Context(), cfg.GetDSN(), path); err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Migration applied successfully")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&sqlFiles, "sql", nil, "SQL migration file to apply after the model migrations (repeatable)")
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <genesis.yaml>",
		Short: "Load the whitelist, balances and allowances from a genesis file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}

			file, err := genesis.LoadFile(args[0])
			if err != nil {
				return err
			}
			if cfg.Ledger.Backend != config.LedgerBackendDB && (len(file.Balances) > 0 || len(file.Allowances) > 0) {
				return fmt.Errorf("balances and allowances can only be seeded into the db ledger")
			}

			if err := database.AutoMigrate(db); err != nil {
				return err
			}

			summary, err := genesis.Apply(
				cmd.Context(),
				file,
				access.NewRegistry(db),
				ledger.NewDBLedger(db, cfg.Governance.Treasury),
			)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d whitelist entries, %d balances, %d allowances\n",
				summary.Whitelisted, summary.Balances, summary.Allowances)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <address>",
		Short: "Issue an API token for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logging.SetupLogger(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

			address := args[0]
			if cfg.Ledger.Backend == config.LedgerBackendSPL && !config.IsSolanaAddress(address) {
				return fmt.Errorf("%q is not a valid Solana address", address)
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			auth.InitJWT(cfg.Auth.JWTSecret)
			token, err := auth.GenerateToken(address, ttl)
			if err != nil {
				return err
			}

			log.Debug().Str("address", address).Dur("ttl", ttl).Msg("Token issued")
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_TTL)")
	return cmd
}

func newProposalsCmd() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:     "proposals",
		Aliases: []string{"ls"},
		Short:   "List proposals stored in the database",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, err := bootstrap()
			if err != nil {
				return err
			}

			proposals, total, err := repository.NewRepository(db).ListProposals(cmd.Context(), limit, offset)
			if err != nil {
				return fmt.Errorf("failed to list proposals: %w", err)
			}

			params := governance.Params{
				DepositPeriod: cfg.Governance.DepositPeriod,
				VotingPeriod:  cfg.Governance.VotingPeriod,
			}
			now := time.Now().UTC()

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Creator", "Status", "Phase", "Deposit", "Approve", "Deny", "Deposit Opens", "Description"})
			for _, p := range proposals {
				t.AppendRow(table.Row{
					p.ID,
					p.Creator,
					p.Status,
					governance.PhaseAt(p, params, now),
					p.DepositTotal.String(),
					p.ApprovalVotes.String(),
					p.DenialVotes.String(),
					p.DepositStartsAt.Format(time.RFC3339),
					text.Trim(p.Description, 40),
				})
			}
			t.AppendFooter(table.Row{"", "", "", "", "", "", "", "Total", total})
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of proposals to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of newest proposals to skip")
	return cmd
}
