// Package dbops provides scratch-database lifecycle helpers for integration
// test fixtures exercising the pipeline adapter against a real Postgres
// server.
package dbops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// QuoteIdentifier quotes a Postgres identifier to prevent SQL injection,
// doubling any internal double quotes.
func QuoteIdentifier(name string) string {
	var result strings.Builder
	result.WriteByte('"')
	for _, c := range name {
		if c == '"' {
			result.WriteString(`""`)
		} else {
			result.WriteRune(c)
		}
	}
	result.WriteByte('"')
	return result.String()
}

// GenerateDropSQL generates a DROP DATABASE statement for dbName.
func GenerateDropSQL(dbName string) string {
	return fmt.Sprintf("DROP DATABASE IF EXISTS %s", QuoteIdentifier(dbName))
}

// GenerateCreateSQL generates a CREATE DATABASE statement for dbName.
// Postgres doesn't support IF NOT EXISTS for CREATE DATABASE; existence is
// checked separately by CreateDB.
func GenerateCreateSQL(dbName string) string {
	return fmt.Sprintf("CREATE DATABASE %s", QuoteIdentifier(dbName))
}

// DropDB drops a PostgreSQL database if it exists. Requires a connection to
// a maintenance database (e.g. "postgres").
func DropDB(ctx context.Context, db *sql.DB, dbName string) error {
	// First, terminate all connections to the database so DROP doesn't block.
	terminateSQL := `
		SELECT pg_terminate_backend(pg_stat_activity.pid)
		FROM pg_stat_activity
		WHERE pg_stat_activity.datname = $1
		AND pid <> pg_backend_pid()
	`
	_, _ = db.ExecContext(ctx, terminateSQL, dbName)

	if _, err := db.ExecContext(ctx, GenerateDropSQL(dbName)); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", dbName, err)
	}
	return nil
}

// CreateDB creates a PostgreSQL database if it doesn't exist.
func CreateDB(ctx context.Context, db *sql.DB, dbName string) error {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)",
		dbName,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := db.ExecContext(ctx, GenerateCreateSQL(dbName)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", dbName, err)
	}
	return nil
}
