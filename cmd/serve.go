package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deposit-governance/internal/access"
	"deposit-governance/internal/auth"
	"deposit-governance/internal/blockchain"
	"deposit-governance/internal/config"
	"deposit-governance/internal/database"
	"deposit-governance/internal/events"
	"deposit-governance/internal/governance"
	"deposit-governance/internal/handlers"
	"deposit-governance/internal/jobs"
	"deposit-governance/internal/ledger"
	"deposit-governance/internal/metrics"
	"deposit-governance/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the governance HTTP API and background jobs",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := database.AutoMigrate(db); err != nil {
		return err
	}

	auth.InitJWT(cfg.Auth.JWTSecret)

	tokens, validateAddress, err := buildLedger(ctx, cfg, db)
	if err != nil {
		return err
	}

	registry := access.NewRegistry(db)
	repo := repository.NewRepository(db)
	m := metrics.NewMetrics()

	engine, err := governance.NewEngine(ctx, governance.Params{
		Admin:         cfg.Governance.Admin,
		Treasury:      cfg.Governance.Treasury,
		BurnAddress:   cfg.Governance.BurnAddress,
		DepositLimit:  cfg.Governance.DepositLimit,
		DepositPeriod: cfg.Governance.DepositPeriod,
		VotingPeriod:  cfg.Governance.VotingPeriod,
	}, tokens, registry, repo, governance.WithEventHook(m.ObserveEvent))
	if err != nil {
		return fmt.Errorf("failed to start governance engine: %w", err)
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	relay := jobs.NewEventRelay(repo, publisher, m, cfg.Jobs.RelayInterval, cfg.Jobs.RelayBatchSize)
	go relay.Start()
	defer relay.Stop()

	monitor := jobs.NewWindowMonitor(engine, m, cfg.Jobs.MonitorInterval)
	go monitor.Start()
	defer monitor.Stop()

	if zerolog.GlobalLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.SetupRouter(
		handlers.RouterConfig{
			CORSOrigins:    cfg.Server.CORSOrigins,
			OpenTokenIssue: cfg.Auth.OpenIssue,
		},
		handlers.NewGovernanceHandler(engine, repo),
		handlers.NewAuthHandler(cfg.Auth.TokenTTL, validateAddress),
		m,
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("admin", cfg.Governance.Admin).
			Str("ledger", cfg.Ledger.Backend).
			Msg("Server starting")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Flush whatever the last requests committed once the loop has exited
	relay.Stop()
	if _, err := relay.RelayOnce(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Final outbox relay pass failed")
	}

	log.Info().Msg("Server exited")
	return nil
}

// buildLedger selects the token ledger and the address check used when issuing tokens
func buildLedger(ctx context.Context, cfg *config.Config, db *gorm.DB) (governance.TokenLedger, func(string) bool, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendSPL:
		spl, err := blockchain.NewSPLLedger(blockchain.SPLConfig{
			Network:        cfg.Solana.Network,
			RPCURL:         cfg.Solana.RPCURL,
			MintAddress:    cfg.Solana.MintAddress,
			Decimals:       cfg.Solana.Decimals,
			PrivateKey:     cfg.Solana.PrivateKey,
			ConfirmTimeout: cfg.Solana.ConfirmTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if spl.Treasury() != cfg.Governance.Treasury {
			return nil, nil, fmt.Errorf("TREASURY_ADDRESS %s does not match the server wallet %s", cfg.Governance.Treasury, spl.Treasury())
		}

		diag := spl.RunDiagnostics(ctx)
		if !diag.Healthy() {
			return nil, nil, fmt.Errorf("solana ledger unhealthy: rpc=%q mint=%q decimals_match=%t",
				diag.RPCError, diag.MintError, diag.DecimalsMatch)
		}
		return spl, config.IsSolanaAddress, nil

	default:
		tokens := ledger.NewDBLedger(db, cfg.Governance.Treasury)
		if err := tokens.OpenAccount(ctx, cfg.Governance.Treasury); err != nil {
			return nil, nil, fmt.Errorf("failed to open treasury account: %w", err)
		}
		return tokens, nil, nil
	}
}

// buildPublisher returns the Redis stream publisher, or a log-only publisher when Redis is not configured
func buildPublisher(ctx context.Context, cfg *config.Config) (events.Publisher, func(), error) {
	if cfg.Redis.URL == "" {
		log.Warn().Msg("REDIS_URL not set, governance events will only be logged")
		return events.LogPublisher{}, func() {}, nil
	}

	rdb, err := events.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}

	publisher := events.NewRedisPublisher(rdb, cfg.Redis.Stream, cfg.Redis.MaxLen)
	if err := publisher.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	closeFn := func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	return publisher, closeFn, nil
}
