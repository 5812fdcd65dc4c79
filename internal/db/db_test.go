package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

func tableExists(t *testing.T, database *sqlx.DB) bool {
	t.Helper()

	var n int
	err := database.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'client_store'`)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestOpenCreatesDataDirAndSchema(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	path := filepath.Join(dir, "console.db")

	database, err := Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
	if !tableExists(t, database) {
		t.Fatal("client_store table missing after Open")
	}
}

func TestMigrateDownAndUp(t *testing.T) {
	database, err := Open("sqlite", filepath.Join(t.TempDir(), "console.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	if err := MigrateDown(database.DB, "sqlite"); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	if tableExists(t, database) {
		t.Fatal("client_store table still present after rollback")
	}

	if err := RunMigrations(database.DB, "sqlite"); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	if !tableExists(t, database) {
		t.Fatal("client_store table missing after migrating up again")
	}
}

func TestUnsupportedDriver(t *testing.T) {
	database, err := Init("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer database.Close()

	if err := RunMigrations(database.DB, "mysql"); err == nil {
		t.Fatal("RunMigrations accepted an unknown driver")
	}
}

func TestEnsureDataDir(t *testing.T) {
	tests := []struct {
		name       string
		connection string
	}{
		{"memory", ":memory:"},
		{"file uri memory", "file::memory:?cache=shared"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ensureDataDir(tt.connection); err != nil {
				t.Fatalf("ensureDataDir(%q) = %v", tt.connection, err)
			}
		})
	}
}
