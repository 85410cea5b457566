package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"deposit-governance/internal/models"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect establishes a connection to the configured database
func Connect(driver, dsn string, level logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(level),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	DB = db
	log.Info().Str("driver", driver).Msg("[Database] connection established")
	return db, nil
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate(db *gorm.DB) error {
	groups := []struct {
		name   string
		models []interface{}
	}{
		{"governance", []interface{}{
			&models.Proposal{},
			&models.ProposalVote{},
			&models.VetoHolder{},
			&models.GovernanceEvent{},
		}},
		{"ledger", []interface{}{
			&models.LedgerAccount{},
			&models.LedgerAllowance{},
			&models.LedgerTransfer{},
		}},
		{"access", []interface{}{
			&models.WhitelistEntry{},
		}},
	}

	for _, group := range groups {
		if err := db.AutoMigrate(group.models...); err != nil {
			return fmt.Errorf("failed to migrate %s models: %w", group.name, err)
		}
	}

	log.Info().Msg("[Database] migrations completed successfully")
	return nil
}

// ApplySQLFile executes a hand-written postgres migration
func ApplySQLFile(ctx context.Context, dsn, path string) error {
	migrationSQL, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("file", path).Msg("[Database] executing migration")
	if _, err := db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", path, err)
	}

	log.Info().Str("file", path).Msg("[Database] migration applied")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
