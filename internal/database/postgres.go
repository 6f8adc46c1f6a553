// Package database opens the PostgreSQL pool and owns the schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FairForge/dropsense/internal/config"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Postgres represents a PostgreSQL connection
type Postgres struct {
	db *sql.DB
}

// Open creates a connection pool. It does not contact the server; call
// Ping for that.
func Open(cfg config.DatabaseConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db}, nil
}

// New wraps an existing pool.
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// DB exposes the pool to the stores.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies the database connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Schema is applied in order by Migrate. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS behavior_events (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		action VARCHAR(32) NOT NULL,
		element VARCHAR(256) NOT NULL,
		section VARCHAR(256) NOT NULL,
		duration_ms BIGINT,
		metadata JSONB,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS behavior_events_user_time
		ON behavior_events (user_id, occurred_at)`,
	`CREATE TABLE IF NOT EXISTS risk_profiles (
		user_id VARCHAR(255) PRIMARY KEY,
		assessment JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chain_preferences (
		user_id VARCHAR(255) NOT NULL,
		chain VARCHAR(64) NOT NULL,
		score JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, chain)
	)`,
	`CREATE TABLE IF NOT EXISTS activity_patterns (
		user_id VARCHAR(255) PRIMARY KEY,
		score JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS adaptation_configs (
		user_id VARCHAR(255) PRIMARY KEY,
		config JSONB NOT NULL,
		history JSONB NOT NULL DEFAULT '[]'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS preference_insights (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		insight_type VARCHAR(64) NOT NULL,
		body JSONB NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		valid_until TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS preference_insights_user_valid
		ON preference_insights (user_id, valid_until)`,
	`CREATE TABLE IF NOT EXISTS preference_evolution (
		id BIGSERIAL PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		category VARCHAR(32) NOT NULL,
		old_value JSONB,
		new_value JSONB NOT NULL,
		change_reason TEXT NOT NULL,
		change_trigger VARCHAR(128) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS preference_evolution_user_time
		ON preference_evolution (user_id, created_at)`,
}

// Migrate creates the tables the stores need.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, query := range Schema {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
