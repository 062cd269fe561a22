package service

import (
	"fmt"
	"os"
	"path/filepath"
)

// DatabaseResult contains the results of a database operation.
type DatabaseResult struct {
	DatabaseRemoved bool     // whether the database file was removed
	FilesRemoved    []string // every file deleted by the operation
}

// ResetDatabase removes the build database plus any legacy CRC files,
// destroying all build history. The caller is responsible for
// confirming the operation with the user and displaying what will be
// deleted.
func (s *Service) ResetDatabase() (*DatabaseResult, error) {
	result := &DatabaseResult{
		FilesRemoved: make([]string, 0),
	}

	dbPath := s.cfg.Database.Path

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return result, nil // nothing to remove
	}

	// The bbolt handle must be closed before the file goes away
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return nil, fmt.Errorf("failed to close database before reset: %w", err)
		}
		s.db = nil
	}

	if err := os.Remove(dbPath); err != nil {
		return nil, fmt.Errorf("failed to remove database: %w", err)
	}

	result.DatabaseRemoved = true
	result.FilesRemoved = append(result.FilesRemoved, dbPath)
	s.logger.Info("Build database removed: %s", dbPath)

	// Sweep the legacy CRC file and its backup too, so a reset really
	// starts from nothing
	legacyFile := filepath.Join(s.cfg.BuildBase, "crc_index")
	for _, path := range []string{legacyFile, legacyFile + ".bak"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Remove(path); err == nil {
			result.FilesRemoved = append(result.FilesRemoved, path)
			s.logger.Info("Removed: %s", path)
		}
	}

	return result, nil
}

// DatabaseExists checks if the build database file exists.
func (s *Service) DatabaseExists() bool {
	_, err := os.Stat(s.cfg.Database.Path)
	return err == nil
}

// GetDatabasePath returns the path to the build database.
func (s *Service) GetDatabasePath() string {
	return s.cfg.Database.Path
}

// BackupDatabase copies the build database to <path>.backup and returns
// the backup path.
func (s *Service) BackupDatabase() (string, error) {
	dbPath := s.cfg.Database.Path

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return "", fmt.Errorf("database does not exist: %s", dbPath)
	}

	backupPath := fmt.Sprintf("%s.backup", dbPath)

	input, err := os.ReadFile(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to read database: %w", err)
	}

	if err := os.WriteFile(backupPath, input, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	s.logger.Info("Database backed up to: %s", backupPath)
	return backupPath, nil
}
