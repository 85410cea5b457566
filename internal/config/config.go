package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

const (
	LedgerBackendDB  = "db"
	LedgerBackendSPL = "spl"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Governance GovernanceConfig
	Ledger     LedgerConfig
	Solana     SolanaConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Jobs       JobsConfig
	Log        LogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

// GovernanceConfig holds the fixed engine parameters
type GovernanceConfig struct {
	Admin         string
	Treasury      string
	BurnAddress   string
	DepositLimit  decimal.Decimal
	DepositPeriod time.Duration
	VotingPeriod  time.Duration
}

// LedgerConfig selects the token ledger implementation
type LedgerConfig struct {
	Backend string
}

// SolanaConfig holds SPL token ledger settings
type SolanaConfig struct {
	Network        string
	RPCURL         string
	PrivateKey     string
	MintAddress    string
	Decimals       uint8
	ConfirmTimeout time.Duration
}

// RedisConfig holds event stream settings; an empty URL disables Redis
type RedisConfig struct {
	URL    string
	Stream string
	MaxLen int64
}

// AuthConfig holds JWT settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	OpenIssue bool
}

// JobsConfig holds background job intervals
type JobsConfig struct {
	RelayInterval   time.Duration
	RelayBatchSize  int
	MonitorInterval time.Duration
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Pretty bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	p := &parser{}

	config := &Config{
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", DriverPostgres),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "governance"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "governance.db"),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Governance: GovernanceConfig{
			Admin:         getEnv("ADMIN_ADDRESS", ""),
			Treasury:      getEnv("TREASURY_ADDRESS", ""),
			BurnAddress:   getEnv("BURN_ADDRESS", ""),
			DepositLimit:  p.decimal("DEPOSIT_LIMIT", "1000"),
			DepositPeriod: p.duration("DEPOSIT_PERIOD", "72h"),
			VotingPeriod:  p.duration("VOTING_PERIOD", "168h"),
		},
		Ledger: LedgerConfig{
			Backend: getEnv("LEDGER_BACKEND", LedgerBackendDB),
		},
		Solana: SolanaConfig{
			Network:        getEnv("SOLANA_NETWORK", "devnet"),
			RPCURL:         getEnv("SOLANA_RPC_URL", ""),
			PrivateKey:     getEnv("SOLANA_PRIVATE_KEY", ""),
			MintAddress:    getEnv("TOKEN_MINT_ADDRESS", ""),
			Decimals:       uint8(p.integer("TOKEN_DECIMALS", "6", 0, 18)),
			ConfirmTimeout: p.duration("SOLANA_CONFIRM_TIMEOUT", "60s"),
		},
		Redis: RedisConfig{
			URL:    getEnv("REDIS_URL", ""),
			Stream: getEnv("REDIS_STREAM", "governance.events"),
			MaxLen: int64(p.integer("REDIS_STREAM_MAXLEN", "100000", 0, 1<<30)),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  p.duration("JWT_TTL", "24h"),
			OpenIssue: p.boolean("AUTH_OPEN_ISSUE", "false"),
		},
		Jobs: JobsConfig{
			RelayInterval:   p.duration("RELAY_INTERVAL", "2s"),
			RelayBatchSize:  p.integer("RELAY_BATCH_SIZE", "100", 1, 10000),
			MonitorInterval: p.duration("MONITOR_INTERVAL", "1m"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: p.boolean("LOG_PRETTY", "false"),
		},
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required fields and cross-field rules
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Governance.Admin == "" || c.Governance.Treasury == "" || c.Governance.BurnAddress == "" {
		return fmt.Errorf("ADMIN_ADDRESS, TREASURY_ADDRESS and BURN_ADDRESS are required")
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch c.Ledger.Backend {
	case LedgerBackendDB:
	case LedgerBackendSPL:
		if c.Solana.PrivateKey == "" || c.Solana.MintAddress == "" {
			return fmt.Errorf("SOLANA_PRIVATE_KEY and TOKEN_MINT_ADDRESS are required for the spl ledger")
		}
		for name, addr := range map[string]string{
			"ADMIN_ADDRESS":      c.Governance.Admin,
			"TREASURY_ADDRESS":   c.Governance.Treasury,
			"BURN_ADDRESS":       c.Governance.BurnAddress,
			"TOKEN_MINT_ADDRESS": c.Solana.MintAddress,
		} {
			if !IsSolanaAddress(addr) {
				return fmt.Errorf("%s is not a valid Solana address: %q", name, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported LEDGER_BACKEND %q", c.Ledger.Backend)
	}

	return nil
}

// GetDSN returns the connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Database.Driver == DriverSQLite {
		return c.Database.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// IsSolanaAddress reports whether addr decodes to a 32-byte public key
func IsSolanaAddress(addr string) bool {
	raw, err := base58.Decode(addr)
	return err == nil && len(raw) == 32
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects typed parse errors so Load can report all of them at once
type parser struct {
	errs []error
}

func (p *parser) duration(key, def string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return d
}

func (p *parser) decimal(key, def string) decimal.Decimal {
	d, err := decimal.NewFromString(getEnv(key, def))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return d
}

func (p *parser) integer(key, def string, lo, hi int) int {
	n, err := strconv.Atoi(getEnv(key, def))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return 0
	}
	if n < lo || n > hi {
		p.errs = append(p.errs, fmt.Errorf("%s: %d out of range [%d, %d]", key, n, lo, hi))
	}
	return n
}

func (p *parser) boolean(key, def string) bool {
	b, err := strconv.ParseBool(getEnv(key, def))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return b
}
