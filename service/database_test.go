package service

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDatabaseExists(t *testing.T) {
	svc, _ := newTestService(t)

	// NewService creates the database file
	if !svc.DatabaseExists() {
		t.Error("DatabaseExists() = false, expected true after NewService")
	}
}

func TestDatabaseExists_NoDB(t *testing.T) {
	svc, cfg := newTestService(t)

	// Point the config at a file that was never created
	cfg.Database.Path = filepath.Join(cfg.BuildBase, "missing.db")

	if svc.DatabaseExists() {
		t.Error("DatabaseExists() = true for a missing file")
	}
}

func TestGetDatabasePath(t *testing.T) {
	svc, cfg := newTestService(t)

	if got := svc.GetDatabasePath(); got != cfg.Database.Path {
		t.Errorf("GetDatabasePath() = %q, want %q", got, cfg.Database.Path)
	}
}

func TestBackupDatabase(t *testing.T) {
	svc, cfg := newTestService(t)

	recordBuild(t, svc.Database(), "uuid-backup", "app/core", "1.0")

	backupPath, err := svc.BackupDatabase()
	if err != nil {
		t.Fatalf("BackupDatabase() failed: %v", err)
	}

	if backupPath != cfg.Database.Path+".backup" {
		t.Errorf("backup path = %q", backupPath)
	}
	info, err := os.Stat(backupPath)
	if err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("backup file is empty")
	}
}

func TestBackupDatabase_NoDatabase(t *testing.T) {
	svc, cfg := newTestService(t)

	cfg.Database.Path = filepath.Join(cfg.BuildBase, "missing.db")

	if _, err := svc.BackupDatabase(); err == nil {
		t.Error("BackupDatabase() should fail for a missing database")
	}
}

func TestResetDatabase(t *testing.T) {
	svc, cfg := newTestService(t)

	recordBuild(t, svc.Database(), "uuid-reset", "app/core", "1.0")

	result, err := svc.ResetDatabase()
	if err != nil {
		t.Fatalf("ResetDatabase() failed: %v", err)
	}

	if !result.DatabaseRemoved {
		t.Error("DatabaseRemoved = false")
	}
	if _, err := os.Stat(cfg.Database.Path); !os.IsNotExist(err) {
		t.Error("database file still present after reset")
	}
	if svc.Database() != nil {
		t.Error("service still holds a database handle after reset")
	}
}

func TestResetDatabase_NoDB(t *testing.T) {
	svc, cfg := newTestService(t)

	cfg.Database.Path = filepath.Join(cfg.BuildBase, "missing.db")

	result, err := svc.ResetDatabase()
	if err != nil {
		t.Fatalf("ResetDatabase() failed: %v", err)
	}
	if result.DatabaseRemoved {
		t.Error("DatabaseRemoved = true with nothing to remove")
	}
}

func TestResetDatabase_WithLegacyFiles(t *testing.T) {
	svc, cfg := newTestService(t)

	legacyFile := filepath.Join(cfg.BuildBase, "crc_index")
	backupFile := legacyFile + ".bak"
	os.WriteFile(legacyFile, []byte("app/core:deadbeef\n"), 0644)
	os.WriteFile(backupFile, []byte("old"), 0644)

	result, err := svc.ResetDatabase()
	if err != nil {
		t.Fatalf("ResetDatabase() failed: %v", err)
	}

	// Database plus both legacy files go away
	if len(result.FilesRemoved) != 3 {
		t.Errorf("FilesRemoved = %v, want 3 entries", result.FilesRemoved)
	}
	for _, path := range []string{cfg.Database.Path, legacyFile, backupFile} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still present after reset", path)
		}
	}
}
