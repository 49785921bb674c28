package dbops

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenMaintenanceDB opens a connection to the "postgres" maintenance database
// on the same server as databaseURL. It is used by integration test fixtures
// to create and drop scratch databases for pipeline tests.
func OpenMaintenanceDB(databaseURL string) (*sql.DB, error) {
	maintenanceURL, err := replacePostgresDBName(databaseURL, "postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to build maintenance URL: %w", err)
	}
	db, err := sql.Open("pgx", maintenanceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL maintenance connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return db, nil
}

// replacePostgresDBName replaces the database name in a PostgreSQL URL.
func replacePostgresDBName(pgURL, newDBName string) (string, error) {
	// Find the path component and replace it
	// Format: postgres://user@host:port/dbname
	lastSlash := strings.LastIndex(pgURL, "/")
	if lastSlash == -1 {
		return "", fmt.Errorf("invalid PostgreSQL URL: no path separator")
	}

	// Check if there's a query string
	queryIdx := strings.Index(pgURL[lastSlash:], "?")
	if queryIdx != -1 {
		return pgURL[:lastSlash+1] + newDBName + pgURL[lastSlash+queryIdx:], nil
	}

	return pgURL[:lastSlash+1] + newDBName, nil
}
