package database

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"

	"creatorguard/internal/bootstrap/config"
	"creatorguard/internal/bootstrap/logging"
)

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	dsn := filepath.Join(dir, "moderation.sqlite") + "?_pragma=busy_timeout(5000)"

	db, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("sqlite directory not created: %v", err)
	}
	if err := Ping(context.Background(), db); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	sqlDB, _ := db.DB()
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.DatabaseConfig{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatalf("Open() expected error for unsupported driver")
	}
}

func TestEnsureSQLiteDirectorySkipsMemory(t *testing.T) {
	if err := ensureSQLiteDirectory(context.Background(), ":memory:"); err != nil {
		t.Fatalf("ensureSQLiteDirectory() error = %v", err)
	}
	if err := ensureSQLiteDirectory(context.Background(), "file:local.sqlite?cache=shared"); err != nil {
		t.Fatalf("ensureSQLiteDirectory() error = %v", err)
	}
}

func TestOpenLogsFailedStatementsButNotMissingRows(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(&buf, "warn", "text")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	ctx := logging.WithLogger(context.Background(), logger)

	dsn := filepath.Join(t.TempDir(), "log.sqlite")
	db, err := Open(ctx, config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	if err := db.Exec("CREATE TABLE items (id TEXT PRIMARY KEY)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	var row struct{ ID string }
	err = db.Table("items").Where("id = ?", "missing").Take(&row).Error
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("Take() error = %v, want ErrRecordNotFound", err)
	}
	if strings.Contains(buf.String(), "record not found") {
		t.Fatalf("missing row was logged: %q", buf.String())
	}

	if err := db.Exec("SELECT * FROM no_such_table").Error; err == nil {
		t.Fatal("expected query error")
	}
	out := buf.String()
	if !strings.Contains(out, "database statement") || !strings.Contains(out, "no_such_table") {
		t.Fatalf("failed statement not logged: %q", out)
	}
}
