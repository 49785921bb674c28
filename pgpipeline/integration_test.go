//go:build integration

package pgpipeline_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shipq/pgpipeline/internal/dbops"
	"github.com/shipq/pgpipeline/pgpipeline"
)

// TestIntegration_PipelinedRoundTrip exercises Conn against a real Postgres
// server: it carves out a scratch database via dbops, runs a small
// pipelined batch of writes and reads through it, then tears the database
// back down. Skipped unless PGPIPELINE_TEST_DATABASE_URL points at a
// maintenance-reachable server.
func TestIntegration_PipelinedRoundTrip(t *testing.T) {
	adminURL := os.Getenv("PGPIPELINE_TEST_DATABASE_URL")
	if adminURL == "" {
		t.Skip("PGPIPELINE_TEST_DATABASE_URL not set")
	}

	maintenance, err := dbops.OpenMaintenanceDB(adminURL)
	if err != nil {
		t.Fatalf("OpenMaintenanceDB: %v", err)
	}
	defer maintenance.Close()

	dbName := fmt.Sprintf("pgpipeline_scratch_%d", time.Now().UnixNano())
	if err := dbops.CreateDB(context.Background(), maintenance, dbName); err != nil {
		t.Fatalf("CreateDB: %v", err)
	}
	defer func() {
		_ = dbops.DropDB(context.Background(), maintenance, dbName)
	}()

	scratchURL, err := scratchDatabaseURL(adminURL, dbName)
	if err != nil {
		t.Fatalf("scratchDatabaseURL: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgpipeline.Connect(ctx, pgpipeline.Options{DatabaseURL: scratchURL})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer func() { _ = conn.Disconnect(ctx) }()

	if _, err := conn.Execute(ctx, "CREATE TABLE widgets (id serial primary key, name text not null)"); err != nil {
		t.Fatalf("Execute CREATE TABLE: %v", err)
	}

	insertA, err := conn.ExecQuery(ctx, "INSERT INTO widgets (name) VALUES ($1)", []any{"alpha"}, true, nil)
	if err != nil {
		t.Fatalf("ExecQuery insert alpha: %v", err)
	}
	insertB, err := conn.ExecQuery(ctx, "INSERT INTO widgets (name) VALUES ($1)", []any{"beta"}, true, nil)
	if err != nil {
		t.Fatalf("ExecQuery insert beta: %v", err)
	}

	resA, err := insertA.Force()
	if err != nil {
		t.Fatalf("force insert alpha: %v", err)
	}
	if resA.RowsAffected() != 1 {
		t.Fatalf("insert alpha: expected 1 row affected, got %d", resA.RowsAffected())
	}
	resB, err := insertB.Force()
	if err != nil {
		t.Fatalf("force insert beta: %v", err)
	}
	if resB.RowsAffected() != 1 {
		t.Fatalf("insert beta: expected 1 row affected, got %d", resB.RowsAffected())
	}

	all, err := conn.SelectAll(ctx, "SELECT id, name FROM widgets ORDER BY id", nil)
	if err != nil {
		t.Fatalf("SelectAll: %v", err)
	}
	n, err := all.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 widgets, got %d", n)
	}

	if err := conn.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
}

// scratchDatabaseURL points adminURL at dbName instead of its original path
// component, the same substitution dbops.OpenMaintenanceDB performs in
// reverse to reach the "postgres" maintenance database.
func scratchDatabaseURL(adminURL, dbName string) (string, error) {
	lastSlash := -1
	for i := len(adminURL) - 1; i >= 0; i-- {
		if adminURL[i] == '/' {
			lastSlash = i
			break
		}
	}
	if lastSlash == -1 {
		return "", fmt.Errorf("invalid PostgreSQL URL: no path separator")
	}
	queryIdx := -1
	for i := lastSlash; i < len(adminURL); i++ {
		if adminURL[i] == '?' {
			queryIdx = i
			break
		}
	}
	if queryIdx != -1 {
		return adminURL[:lastSlash+1] + dbName + adminURL[queryIdx:], nil
	}
	return adminURL[:lastSlash+1] + dbName, nil
}
