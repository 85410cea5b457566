package config

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ADMIN_ADDRESS", "admin")
	t.Setenv("TREASURY_ADDRESS", "treasury")
	t.Setenv("BURN_ADDRESS", "burn")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Governance.DepositLimit.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 72*time.Hour, cfg.Governance.DepositPeriod)
	assert.Equal(t, 168*time.Hour, cfg.Governance.VotingPeriod)
	assert.Equal(t, LedgerBackendDB, cfg.Ledger.Backend)
	assert.Equal(t, uint8(6), cfg.Solana.Decimals)
	assert.False(t, cfg.Auth.OpenIssue)
	assert.Equal(t, "governance.events", cfg.Redis.Stream)
	assert.Contains(t, cfg.GetDSN(), "dbname=governance")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/gov.db")
	t.Setenv("DEPOSIT_LIMIT", "250.5")
	t.Setenv("DEPOSIT_PERIOD", "30m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AUTH_OPEN_ISSUE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/gov.db", cfg.GetDSN())
	assert.True(t, cfg.Governance.DepositLimit.Equal(decimal.RequireFromString("250.5")))
	assert.Equal(t, 30*time.Minute, cfg.Governance.DepositPeriod)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Auth.OpenIssue)
}

func TestLoadReportsEveryParseError(t *testing.T) {
	setRequired(t)
	t.Setenv("DEPOSIT_LIMIT", "lots")
	t.Setenv("VOTING_PERIOD", "a week")
	t.Setenv("TOKEN_DECIMALS", "40")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEPOSIT_LIMIT")
	assert.Contains(t, err.Error(), "VOTING_PERIOD")
	assert.Contains(t, err.Error(), "TOKEN_DECIMALS")
}

func TestLoadRequiresSecretsAndRoles(t *testing.T) {
	t.Setenv("ADMIN_ADDRESS", "admin")
	t.Setenv("TREASURY_ADDRESS", "treasury")
	t.Setenv("BURN_ADDRESS", "burn")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s")
	t.Setenv("BURN_ADDRESS", "")
	_, err = Load()
	assert.ErrorContains(t, err, "BURN_ADDRESS")
}

func TestValidateSPLBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("LEDGER_BACKEND", "spl")
	t.Setenv("SOLANA_PRIVATE_KEY", "key")
	t.Setenv("TOKEN_MINT_ADDRESS", solana.NewWallet().PublicKey().String())

	// Plain names are not Solana addresses
	_, err := Load()
	assert.ErrorContains(t, err, "not a valid Solana address")

	t.Setenv("ADMIN_ADDRESS", solana.NewWallet().PublicKey().String())
	t.Setenv("TREASURY_ADDRESS", solana.NewWallet().PublicKey().String())
	t.Setenv("BURN_ADDRESS", solana.NewWallet().PublicKey().String())
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, LedgerBackendSPL, cfg.Ledger.Backend)
}

func TestIsSolanaAddress(t *testing.T) {
	assert.True(t, IsSolanaAddress(solana.NewWallet().PublicKey().String()))
	assert.False(t, IsSolanaAddress("alice"))
	assert.False(t, IsSolanaAddress("0OIl"))
	assert.False(t, IsSolanaAddress(""))
}
