// Package service provides reusable business logic for forge operations.
//
// The service layer sits between the CLI (cmd/) and the library
// packages (driver, builddb, targets, environment), keeping the
// concerns separate:
//
//   - CLI layer (cmd/): user interaction, prompts, formatting, arg parsing
//   - service layer (service/): orchestrates business logic across libraries
//   - library layer (driver, builddb, ...): core functionality with no terminal coupling
//
// Because every service method reports through log.LibraryLogger rather
// than a terminal, the same layer serves the CLI, test harnesses, and
// any future API front end.
package service

import (
	"fmt"
	"sync"

	"forge/builddb"
	"forge/config"
	"forge/log"
)

// Service coordinates business logic across forge subsystems.
//
// It manages the lifecycle of shared resources (logger, database) and
// provides high-level operations for build orchestration, status
// queries, and maintenance.
//
// Usage:
//
//	cfg, _ := config.LoadConfig("", "default")
//	svc, err := service.NewService(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	result, err := svc.Build(service.BuildOptions{
//	    TargetList: []string{"app/core"},
//	    Force:      false,
//	})
type Service struct {
	cfg           *config.Config
	logger        *log.Logger
	db            *builddb.DB
	activeCleanup func() // cleanup for the active build, set as soon as workers exist
	cleanupMu     sync.Mutex
}

// NewService creates a new Service instance with the given configuration.
//
// It initializes the logger and opens the build database. The caller is
// responsible for calling Close() to release resources (typically via
// defer).
func NewService(cfg *config.Config) (*Service, error) {
	logger, err := log.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := builddb.OpenDB(cfg.Database.Path)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to open build database: %w", err)
	}

	return &Service{
		cfg:    cfg,
		logger: logger,
		db:     db,
	}, nil
}

// Close releases resources held by the service (logger, database).
//
// Close does NOT invoke cleanup for an active build; the caller owns
// the cleanup function returned in BuildResult.
func (s *Service) Close() error {
	var errs []error

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}

	if s.logger != nil {
		s.logger.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("service close errors: %v", errs)
	}

	return nil
}

// Config returns the service's configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Logger returns the service's logger.
func (s *Service) Logger() *log.Logger {
	return s.logger
}

// Database returns the service's build database.
func (s *Service) Database() *builddb.DB {
	return s.db
}

// SetActiveCleanup stores the cleanup function for the active build.
// Build() calls this as soon as worker environments exist, so signal
// handlers can tear them down on interruption.
func (s *Service) SetActiveCleanup(cleanup func()) {
	s.cleanupMu.Lock()
	s.activeCleanup = cleanup
	s.cleanupMu.Unlock()
}

// GetActiveCleanup returns the cleanup function for the active build,
// or nil if no build is active.
func (s *Service) GetActiveCleanup() func() {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()
	return s.activeCleanup
}

// ClearActiveCleanup removes the stored cleanup function once cleanup
// has completed.
func (s *Service) ClearActiveCleanup() {
	s.cleanupMu.Lock()
	s.activeCleanup = nil
	s.cleanupMu.Unlock()
}
