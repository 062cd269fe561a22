package service

import (
	"fmt"
	"os"
	"path/filepath"

	"forge/builddb"
	"forge/util"
)

// Initialize sets up the forge environment for the first time.
//
// The initialization process includes:
//  1. Creating the required directory structure (build base, logs,
//     artifacts, downloads, worker scratch space)
//  2. Initializing the build database
//  3. Optionally migrating legacy CRC data
//  4. Verifying the project tree
//
// This method handles all the business logic but does not interact with
// the user. The caller is responsible for displaying progress, prompting
// for confirmations (e.g., migration), and presenting warnings.
//
// Returns InitResult describing what was created and any warnings.
func (s *Service) Initialize(opts InitOptions) (*InitResult, error) {
	result := &InitResult{
		DirsCreated: make([]string, 0),
		Warnings:    make([]string, 0),
	}

	// 1. Create required directories
	dirs := map[string]string{
		"Build base": s.cfg.BuildBase,
		"Logs":       s.cfg.LogsPath,
		"Tree":       s.cfg.TreePath,
		"Artifacts":  s.cfg.ArtifactsPath,
		"Downloads":  s.cfg.DownloadsPath,
		"Workers":    filepath.Join(s.cfg.BuildBase, "workers"),
	}

	for label, dir := range dirs {
		if err := util.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create %s directory (%s): %w", label, dir, err)
		}
		result.DirsCreated = append(result.DirsCreated, dir)
		s.logger.Info("Created %s: %s", label, dir)
	}

	// 2. Verify BuildDB (opened in NewService)
	if s.db != nil {
		result.DatabaseInitialized = true
		s.logger.Info("Database initialized: %s", s.cfg.Database.Path)
	} else {
		return nil, fmt.Errorf("database not initialized")
	}

	// 3. Check for a legacy CRC index
	if s.NeedsMigration() {
		result.MigrationNeeded = true
		if opts.AutoMigrate {
			if err := s.importLegacyIndex(); err != nil {
				return nil, fmt.Errorf("migration failed: %w", err)
			}
			result.MigrationPerformed = true
		}
	}

	// 4. Verify the project tree
	targetCount, err := s.verifyProjectTree()
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("Project tree verification failed: %v", err))
	} else {
		result.TargetsFound = targetCount
		if targetCount == 0 {
			result.Warnings = append(result.Warnings, "Project tree is empty")
		}
	}

	return result, nil
}

// verifyProjectTree counts the buildable targets in the project tree:
// directories two levels deep ("group/name") carrying a Makefile.
func (s *Service) verifyProjectTree() (int, error) {
	if !util.DirExists(s.cfg.TreePath) {
		return 0, fmt.Errorf("project tree does not exist: %s", s.cfg.TreePath)
	}

	groups, err := os.ReadDir(s.cfg.TreePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read project tree: %w", err)
	}

	count := 0
	for _, group := range groups {
		if !group.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.cfg.TreePath, group.Name()))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			makefile := filepath.Join(s.cfg.TreePath, group.Name(), entry.Name(), "Makefile")
			if _, err := os.Stat(makefile); err == nil {
				count++
			}
		}
	}

	return count, nil
}

// legacyIndexPath is where pre-database forge releases kept the flat
// CRC index.
func (s *Service) legacyIndexPath() string {
	return filepath.Join(s.cfg.BuildBase, "crc_index")
}

// NeedsMigration reports whether a legacy flat CRC index is waiting to
// be imported.
func (s *Service) NeedsMigration() bool {
	_, err := os.Stat(s.legacyIndexPath())
	return err == nil
}

// importLegacyIndex folds the legacy flat CRC index into the build
// database and retires the file: kept as crc_index.bak when
// Migration.BackupLegacy is set, removed outright otherwise. Either way
// the next invocation no longer sees a pending migration.
func (s *Service) importLegacyIndex() error {
	path := s.legacyIndexPath()

	s.logger.Info("Importing legacy CRC index: %s", path)
	stats, err := s.db.ImportLegacyIndex(path, s.logger.Warn)
	if err != nil {
		return err
	}
	s.logger.Info("Imported %d/%d legacy CRC records (%d skipped)",
		stats.Imported, stats.Scanned, stats.Skipped)

	if s.cfg.Migration.BackupLegacy {
		if err := os.Rename(path, path+".bak"); err != nil {
			s.logger.Warn("Failed to back up legacy index: %v", err)
		} else {
			s.logger.Info("Legacy index backed up to: %s.bak", path)
		}
		return nil
	}
	if err := os.Remove(path); err != nil {
		s.logger.Warn("Failed to remove legacy index: %v", err)
	}
	return nil
}

// GetLegacyCRCFile returns the path to the legacy CRC file if it exists.
func (s *Service) GetLegacyCRCFile() (string, error) {
	legacyFile := s.legacyIndexPath()
	if _, err := os.Stat(legacyFile); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return legacyFile, nil
}

// InitDatabase explicitly initializes just the database without full initialization.
// This is useful for commands that need the database but don't need full init.
func InitDatabase(dbPath string) (*builddb.DB, error) {
	return builddb.OpenDB(dbPath)
}
