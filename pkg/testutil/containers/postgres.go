//go:build integration

// Package containers manages shared test containers for integration suites.
// One postgres container serves every suite in a test run; suites isolate
// themselves by truncating the tables they touch.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer exposes the shared database handle.
type PostgresContainer struct {
	DB  *sql.DB
	URL string

	container *tcpostgres.PostgresContainer
}

type manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
}

var shared = &manager{}

// GetManager returns the process-wide container manager.
func GetManager() *manager {
	return shared
}

// GetPostgres starts (once) and returns the shared postgres container with
// the schema applied.
func (m *manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postgres != nil {
		return m.postgres
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("claimstack_test"),
		tcpostgres.WithUsername("claimstack"),
		tcpostgres.WithPassword("claimstack"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open postgres: %v", err)
	}
	db.SetMaxOpenConns(10)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("ping postgres: %v", err)
	}

	if err := applySchema(ctx, db); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("apply schema: %v", err)
	}

	m.postgres = &PostgresContainer{DB: db, URL: url, container: container}
	return m.postgres
}

// TruncateTables resets the given tables, cascading to dependents.
func (c *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := c.DB.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE %s CASCADE", strings.Join(tables, ", ")))
	return err
}

func applySchema(ctx context.Context, db *sql.DB) error {
	path, err := schemaPath()
	if err != nil {
		return err
	}
	ddl, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// schemaPath walks up from the working directory to the module root, where
// scripts/schema.sql lives.
func schemaPath() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "scripts", "schema.sql"), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("module root not found above %s", dir)
		}
		dir = parent
	}
}
