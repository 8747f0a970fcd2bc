package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables the backend writes to. Statements are
// idempotent so the server can run them on every boot.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			phone VARCHAR(32) NOT NULL DEFAULT '',
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(16) NOT NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT UNSIGNED NOT NULL,
			token_hash CHAR(64) NOT NULL,
			expires_at DATETIME NOT NULL,
			revoked_at DATETIME NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_refresh_tokens_hash (token_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS kyc_requests (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(64) NULL,
			request_type VARCHAR(32) NOT NULL,
			request_ref VARCHAR(128) NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			request_hash CHAR(64) NULL,
			request_masked JSON NULL,
			response_masked JSON NULL,
			response_status_code INT NULL,
			response_message_code VARCHAR(64) NULL,
			error_message TEXT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			INDEX idx_kyc_requests_user (user_id),
			INDEX idx_kyc_requests_hash (request_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS api_logs (
			id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(64) NULL,
			endpoint VARCHAR(255) NOT NULL,
			method VARCHAR(8) NOT NULL,
			request_body JSON NULL,
			response_body JSON NULL,
			status_code INT NULL,
			error_message TEXT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			log_type VARCHAR(32) NOT NULL,
			created_at DATETIME NOT NULL,
			INDEX idx_api_logs_type (log_type)
		)`,
		`CREATE TABLE IF NOT EXISTS trips (
			id VARCHAR(36) PRIMARY KEY,
			intutrack_trip_id VARCHAR(64) NULL UNIQUE,
			truck_number VARCHAR(32) NULL,
			invoice VARCHAR(64) NULL,
			src_lat DECIMAL(10,6) NULL,
			src_lng DECIMAL(10,6) NULL,
			dest_lat DECIMAL(10,6) NULL,
			dest_lng DECIMAL(10,6) NULL,
			tel VARCHAR(32) NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'SUBMITTED',
			eta_hrs INT NULL,
			tracking_state VARCHAR(16) NULL,
			started_at DATETIME NULL,
			ended_at DATETIME NULL,
			public_link VARCHAR(512) NULL,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
