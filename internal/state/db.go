// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

var (
	ErrNotInitialized = errors.New("database not initialized")
	ErrNotFound       = errors.New("record not found")
)

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the config as a lib/pq connection string.
func (cfg DBConfig) DSN() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(10)
	DB.SetMaxIdleConns(10)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = DB.Ping(); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Connected to PostgreSQL")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS strategy_parameters (
		params_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 1,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default_strategy',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		min_report_delay_seconds BIGINT NOT NULL,
		max_report_delay_seconds BIGINT NOT NULL,
		profit_factor BIGINT NOT NULL,
		debt_threshold NUMERIC(78, 0) NOT NULL,
		CONSTRAINT uq_strategy_parameters_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_strategy_parameters_config_active ON strategy_parameters(config_name, is_active, activated_at DESC);

	-- amounts are base units and can exceed 64 bits
	CREATE TABLE IF NOT EXISTS harvest_reports (
		report_id BIGSERIAL PRIMARY KEY,
		harvest_id UUID NOT NULL UNIQUE,
		cycle_number INTEGER NOT NULL DEFAULT 0,
		strategy_address VARCHAR(42) NOT NULL,
		venue_cycle BIGINT NOT NULL,
		report_timestamp TIMESTAMPTZ NOT NULL,
		profit NUMERIC(78, 0) NOT NULL,
		loss NUMERIC(78, 0) NOT NULL,
		debt_payment NUMERIC(78, 0) NOT NULL,
		debt_outstanding NUMERIC(78, 0) NOT NULL,
		still_locked NUMERIC(78, 0) NOT NULL,
		total_assets_before NUMERIC(78, 0) NOT NULL,
		total_assets_after NUMERIC(78, 0) NOT NULL,
		emergency_exit BOOLEAN NOT NULL DEFAULT FALSE,
		pending_trade_ids TEXT[]
	);
	CREATE INDEX IF NOT EXISTS idx_harvest_reports_timestamp ON harvest_reports(report_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_harvest_reports_strategy ON harvest_reports(strategy_address, report_timestamp DESC);

	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);
	INSERT INTO cycle_counter (id, current_cycle) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema(ctx context.Context) error {
	if DB == nil {
		return ErrNotInitialized
	}
	if _, err := DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured")
	return nil
}

// DropSchema removes every table EnsureSchema creates.
func DropSchema(ctx context.Context) error {
	if DB == nil {
		return ErrNotInitialized
	}
	dropSQL := `
		DROP TABLE IF EXISTS harvest_reports CASCADE;
		DROP TABLE IF EXISTS strategy_parameters CASCADE;
		DROP TABLE IF EXISTS cycle_counter CASCADE;
	`
	if _, err := DB.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("Database schema dropped")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
